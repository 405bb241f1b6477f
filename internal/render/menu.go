package render

import (
	"strings"

	"github.com/starford/marginalia/internal/canvas"
	"github.com/starford/marginalia/internal/graph"
	"github.com/starford/marginalia/internal/models"
)

// Action identifies a context menu entry.
type Action string

const (
	ActionOpenSource Action = "open-source"
	ActionEdit       Action = "edit"
	ActionColor      Action = "color"
	ActionLink       Action = "link"
	ActionDelete     Action = "delete"
	ActionRemoveLink Action = "remove-link"
	ActionAddNote    Action = "add-note"
	ActionCancel     Action = "cancel"
)

// MenuItem is one entry of a context menu.
type MenuItem struct {
	Action Action       `json:"action"`
	Label  string       `json:"label"`
	Color  models.Color `json:"color,omitempty"`
}

// Menu is declarative menu content; the host draws it.
type Menu struct {
	Title  string            `json:"title"`
	Target canvas.MenuTarget `json:"target"`
	Items  []MenuItem        `json:"items"`
}

var cancelItem = MenuItem{Action: ActionCancel, Label: "Cancel"}

// BuildMenu returns the menu for target. Read-only nodes only offer to
// open their source.
func BuildMenu(target canvas.MenuTarget, g *graph.Graph) Menu {
	m := Menu{Target: target}
	switch target.Kind {
	case canvas.MenuNode:
		n := g.Node(target.NodeID)
		if n == nil {
			m.Items = []MenuItem{cancelItem}
			return m
		}
		m.Title = Header(n)
		if n.ReadOnly() {
			m.Items = []MenuItem{{Action: ActionOpenSource, Label: "Open " + n.FileName}, cancelItem}
			return m
		}
		m.Items = append(m.Items, MenuItem{Action: ActionEdit, Label: "Edit"})
		for _, c := range models.Palette {
			m.Items = append(m.Items, MenuItem{Action: ActionColor, Label: strings.ToUpper(string(c[:1])) + string(c[1:]), Color: c})
		}
		m.Items = append(m.Items,
			MenuItem{Action: ActionLink, Label: "Link to…"},
			MenuItem{Action: ActionDelete, Label: "Delete"},
			cancelItem)
	case canvas.MenuEdge:
		m.Title = "Link"
		if target.Edge == nil || target.Edge.Synthetic {
			if target.Edge != nil {
				if n := g.Node(target.Edge.Target); n != nil {
					m.Items = append(m.Items, MenuItem{Action: ActionOpenSource, Label: "Open " + n.FileName})
				}
			}
			m.Items = append(m.Items, cancelItem)
			return m
		}
		m.Items = []MenuItem{{Action: ActionRemoveLink, Label: "Remove link"}, cancelItem}
	default:
		m.Title = "Canvas"
		m.Items = []MenuItem{{Action: ActionAddNote, Label: "Add note here"}, cancelItem}
	}
	return m
}
