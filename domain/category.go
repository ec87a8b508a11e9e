package domain

// Category is a board column.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name" validate:"required,max=120"`
	Color    string `json:"color" validate:"omitempty,hexcolor"`
	Position *int   `json:"position,omitempty" validate:"omitempty,min=0"`
}

// CategoryPatch renames or recolors a column.
type CategoryPatch struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Color    *string `json:"color,omitempty" validate:"omitempty,hexcolor"`
	Position *int    `json:"position,omitempty" validate:"omitempty,min=0"`
}

func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Color == nil && p.Position == nil
}

func (p CategoryPatch) Apply(c *Category) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Color != nil {
		c.Color = *p.Color
	}
	if p.Position != nil {
		pos := *p.Position
		c.Position = &pos
	}
}
