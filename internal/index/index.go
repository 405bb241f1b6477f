package index

// AnnotationIndex defines the interface for annotation indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type AnnotationIndex interface {
	UpsertDocument(path, checksum string, rows []Row) error
	DeleteDocument(path string) error
	AllChecksums() (map[string]string, error)
	Search(query string, limit int) ([]Hit, error)
	Close() error
}

// Verify *DB satisfies AnnotationIndex at compile time.
var _ AnnotationIndex = (*DB)(nil)
