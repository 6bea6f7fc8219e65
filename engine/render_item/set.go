package render_item

// Set holds the render items of a scene and derives the per-frame dirty set.
type Set interface {
	// Add appends an item. Its ObjectIndex must be unique within the set.
	Add(item RenderItem)

	// Items returns every item in insertion order.
	Items() []RenderItem

	// Layer returns the items drawn in layer l.
	Layer(l Layer) []RenderItem

	// Dirty appends to dst the items whose constants must be uploaded for frame.
	//
	// Parameters:
	//   - frame: the frame counter of the frame being prepared
	//   - dst: reused storage, may be nil
	//
	// Returns:
	//   - []RenderItem: dst with the dirty items appended, in insertion order
	Dirty(frame uint64, dst []RenderItem) []RenderItem

	Len() int
}

type set struct {
	items  []RenderItem
	layers [LayerCount][]RenderItem
}

var _ Set = &set{}

// NewSet creates an empty render item set.
//
// Returns:
//   - Set: the set
func NewSet() Set {
	return &set{}
}

func (s *set) Add(item RenderItem) {
	s.items = append(s.items, item)
	if l := item.Layer(); l >= 0 && l < LayerCount {
		s.layers[l] = append(s.layers[l], item)
	}
}

func (s *set) Items() []RenderItem {
	return s.items
}

func (s *set) Layer(l Layer) []RenderItem {
	if l < 0 || l >= LayerCount {
		return nil
	}
	return s.layers[l]
}

func (s *set) Dirty(frame uint64, dst []RenderItem) []RenderItem {
	for _, it := range s.items {
		if it.NumFramesDirty(frame) > 0 {
			dst = append(dst, it)
		}
	}
	return dst
}

func (s *set) Len() int {
	return len(s.items)
}
