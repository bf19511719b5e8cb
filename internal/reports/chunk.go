package reports

// Slot is one position on a printed page. Placeholder slots keep fixed grid
// layouts complete on the last page.
type Slot[T any] struct {
	Item        T
	Placeholder bool
}

type Page[T any] struct {
	Number int
	Slots  []Slot[T]
}

// Items returns the real items on the page in order.
func (p Page[T]) Items() []T {
	items := make([]T, 0, len(p.Slots))
	for _, s := range p.Slots {
		if !s.Placeholder {
			items = append(items, s.Item)
		}
	}
	return items
}

func (p Page[T]) Placeholders() int {
	n := 0
	for _, s := range p.Slots {
		if s.Placeholder {
			n++
		}
	}
	return n
}

// Rows splits the page's slots into rows of cols for grid templates.
func (p Page[T]) Rows(cols int) [][]Slot[T] {
	if cols <= 0 {
		cols = 1
	}
	var rows [][]Slot[T]
	for i := 0; i < len(p.Slots); i += cols {
		end := i + cols
		if end > len(p.Slots) {
			end = len(p.Slots)
		}
		rows = append(rows, p.Slots[i:end])
	}
	return rows
}

// Chunk splits items into pages of exactly size slots. The page count is
// ceil(len(items)/size) and the last page is padded with placeholders.
// No items means no pages.
func Chunk[T any](items []T, size int) []Page[T] {
	if size < 1 {
		size = 1
	}
	count := (len(items) + size - 1) / size
	pages := make([]Page[T], 0, count)
	for p := 0; p < count; p++ {
		page := Page[T]{Number: p + 1, Slots: make([]Slot[T], size)}
		for i := range page.Slots {
			idx := p*size + i
			if idx < len(items) {
				page.Slots[i] = Slot[T]{Item: items[idx]}
			} else {
				page.Slots[i] = Slot[T]{Placeholder: true}
			}
		}
		pages = append(pages, page)
	}
	return pages
}

// Flatten concatenates the real items of pages.
func Flatten[T any](pages []Page[T]) []T {
	var out []T
	for _, p := range pages {
		out = append(out, p.Items()...)
	}
	return out
}
