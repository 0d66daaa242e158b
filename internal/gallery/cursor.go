// Package gallery is a circular cursor over an ordered image list.
package gallery

import (
	"fmt"

	"visionctl/internal/model"
)

// Placeholder is rendered in place of an image the service cannot serve.
const Placeholder = "[image unavailable]"

// Cursor walks a non-empty image list. The index is always in [0, Len()).
type Cursor struct {
	items []model.ImageRef
	index int
}

// Open returns a cursor at the first image. Empty lists are rejected so a
// viewer is never opened without something to show.
func Open(items []model.ImageRef) (*Cursor, error) {
	if len(items) == 0 {
		return nil, model.ErrEmptyGallery
	}
	dup := make([]model.ImageRef, len(items))
	copy(dup, items)
	return &Cursor{items: dup}, nil
}

// Next advances one image, wrapping to the first after the last.
func (c *Cursor) Next() model.ImageRef {
	c.index = (c.index + 1) % len(c.items)
	return c.items[c.index]
}

// Previous steps back one image, wrapping to the last before the first.
func (c *Cursor) Previous() model.ImageRef {
	c.index = (c.index - 1 + len(c.items)) % len(c.items)
	return c.items[c.index]
}

// JumpTo moves to image i.
func (c *Cursor) JumpTo(i int) (model.ImageRef, error) {
	if i < 0 || i >= len(c.items) {
		return model.ImageRef{}, fmt.Errorf("%w: %d not in [0,%d)", model.ErrIndexOutOfRange, i, len(c.items))
	}
	c.index = i
	return c.items[c.index], nil
}

func (c *Cursor) Current() model.ImageRef { return c.items[c.index] }

func (c *Cursor) Index() int { return c.index }

func (c *Cursor) Len() int { return len(c.items) }

// Items returns a copy of the image list.
func (c *Cursor) Items() []model.ImageRef {
	dup := make([]model.ImageRef, len(c.items))
	copy(dup, c.items)
	return dup
}

// Position renders the one-based position, e.g. "2/5".
func (c *Cursor) Position() string {
	return fmt.Sprintf("%d/%d", c.index+1, len(c.items))
}
