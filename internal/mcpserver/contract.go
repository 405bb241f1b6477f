package mcpserver

// AnnotationContract describes the annotation model for LLM consumers that
// create highlights, notes and links.
const AnnotationContract = `# Marginalia Annotation Contract

Annotations belong to one document, identified by its absolute file path.
Open a document with ` + "`open_document`" + ` before creating annotations in it.

## Kinds

- **highlight**: a passage of the document. ` + "`text`" + ` is the exact passage.
- **note**: free text attached to the document, optionally to a page.

## Fields

| field | meaning |
|---|---|
| ` + "`text`" + ` | highlighted passage or note body |
| ` + "`note`" + ` | commentary on a highlight |
| ` + "`color`" + ` | one of yellow, green, blue, pink, purple, orange (default yellow) |
| ` + "`page`" + ` | 1-based page; derived from offsets when they are given |
| ` + "`start_offset`" + `, ` + "`end_offset`" + ` | rune offsets into the text returned by ` + "`read_document_text`" + ` |

## Offsets

1. Offsets count Unicode characters, not bytes.
2. When both offsets are given they decide the page, even if the passage also
   appears earlier in the document.
3. Without offsets the first occurrence of the text is used.

## Links

- A link points from an annotation of the open document to any annotation,
  in the same document or another one.
- ` + "`toggle_link`" + ` creates the link when absent and removes it when present.
  Omit ` + "`target_file_path`" + ` for a target in the open document.
- Links to annotations that no longer exist are reported by ` + "`check_links`" + `.

## Example

1. ` + "`open_document`" + ` path=/library/report.pdf
2. ` + "`read_document_text`" + ` path=/library/report.pdf page=2
3. ` + "`add_highlight`" + ` text="revenue growth" start_offset=812 end_offset=826 color=green
4. ` + "`add_note`" + ` text="Compare with the 2023 report"
5. ` + "`toggle_link`" + ` source_id=<note id> target_id=<highlight id>
`
