package render_item

// RenderItemBuilderOption is a functional option for configuring a RenderItem during construction.
type RenderItemBuilderOption func(*renderItem)

// WithWorld sets the initial world transform.
//
// Parameters:
//   - m: the world transform (column-major)
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the world transform
func WithWorld(m [16]float32) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.world = m
	}
}

// WithTexTransform sets the initial texture coordinate transform.
//
// Parameters:
//   - m: the texture transform (column-major)
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the texture transform
func WithTexTransform(m [16]float32) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.texTransform = m
	}
}

// WithMaterialIndex sets the index into the material table.
//
// Parameters:
//   - index: the material index
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the material
func WithMaterialIndex(index int) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.materialIndex = index
	}
}

// WithGeometry sets the geometry drawn by the item.
//
// Parameters:
//   - g: the shared geometry
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the geometry
func WithGeometry(g *Geometry) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.geometry = g
	}
}

// WithLayer sets the pipeline layer the item is drawn in.
//
// Parameters:
//   - l: the layer (default LayerOpaque)
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the layer
func WithLayer(l Layer) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.layer = l
	}
}

// WithCreatedAt stamps the frame the item was created in, so it is dirty for the
// N frames from then on instead of from frame 0.
//
// Parameters:
//   - frame: the frame counter of the frame being prepared
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the creation frame
func WithCreatedAt(frame uint64) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.lastModified = frame
	}
}

// WithDisplacementMap marks the item as displaced by a rows x cols height map whose
// cells are spatialStep apart.
//
// Parameters:
//   - rows: height map rows
//   - cols: height map columns
//   - spatialStep: distance between neighbouring cells
//
// Returns:
//   - RenderItemBuilderOption: functional option to set the displacement parameters
func WithDisplacementMap(rows, cols int, spatialStep float32) RenderItemBuilderOption {
	return func(r *renderItem) {
		r.texelSize = [2]float32{1 / float32(cols), 1 / float32(rows)}
		r.spatialStep = spatialStep
	}
}
