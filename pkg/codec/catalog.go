package codec

// Catalog неизменяемый список кодеков, поддерживаемых движком.
// Содержит только кодеки, для которых есть запись в таблице payload типов,
// порядок соответствует порядку, в котором их перечислил движок.
// Безопасен для чтения из любых горутин.
type Catalog struct {
	specs []Spec
	index map[string]int
}

// NewCatalog создает каталог из списка, полученного от движка.
// Кодеки без записи в таблице payload типов и повторы имен отбрасываются.
func NewCatalog(specs []Spec) *Catalog {
	c := &Catalog{
		specs: make([]Spec, 0, len(specs)),
		index: make(map[string]int, len(specs)),
	}
	for _, spec := range specs {
		if _, ok := spec.PayloadType(); !ok {
			continue
		}
		if _, dup := c.index[spec.Name()]; dup {
			continue
		}
		c.index[spec.Name()] = len(c.specs)
		c.specs = append(c.specs, spec)
	}
	return c
}

// Len возвращает количество кодеков в каталоге
func (c *Catalog) Len() int {
	return len(c.specs)
}

// Specs возвращает копию списка спецификаций
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.specs))
	copy(out, c.specs)
	return out
}

// Names возвращает имена кодеков в порядке каталога
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		names = append(names, spec.Name())
	}
	return names
}

// Lookup ищет кодек по имени
func (c *Catalog) Lookup(name string) (Spec, bool) {
	i, ok := c.index[name]
	if !ok {
		return Spec{}, false
	}
	return c.specs[i], true
}

// Select строит карту payload type -> формат для пересечения names с каталогом.
// Второе значение - имена, попавшие в пересечение, в порядке каталога.
func (c *Catalog) Select(names []string) (map[uint8]Format, []string) {
	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		wanted[name] = struct{}{}
	}

	formats := make(map[uint8]Format, len(names))
	selected := make([]string, 0, len(names))
	for _, spec := range c.specs {
		if _, ok := wanted[spec.Name()]; !ok {
			continue
		}
		pt, _ := spec.PayloadType()
		formats[pt] = spec.Format
		selected = append(selected, spec.Name())
	}
	return formats, selected
}
