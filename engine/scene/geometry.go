package scene

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-waves/common"
	"github.com/Carmen-Shannon/oxy-waves/engine/device"
	"github.com/Carmen-Shannon/oxy-waves/engine/render_item"
	"github.com/Carmen-Shannon/oxy-waves/engine/wave"
	"github.com/chewxy/math32"
)

const vertexStride = uint64(unsafe.Sizeof(common.Vertex{}))

// hillsHeight is the terrain height at (x, z).
func hillsHeight(x, z float32) float32 {
	return 0.3 * (z*math32.Sin(0.1*x) + x*math32.Cos(0.1*z))
}

// hillsNormal is the unit normal of hillsHeight at (x, z).
func hillsNormal(x, z float32) [3]float32 {
	return common.Normalize3([3]float32{
		-0.03*z*math32.Cos(0.1*x) - 0.3*math32.Cos(0.1*z),
		1,
		-0.3*math32.Sin(0.1*x) + 0.03*x*math32.Sin(0.1*z),
	})
}

// landVertices builds an m x n grid of width x depth displaced into hills. Texture
// coordinates span [0, 1] over the grid; the render item's texture transform tiles them.
func landVertices(width, depth float32, m, n int) []common.Vertex {
	dx := width / float32(n-1)
	dz := depth / float32(m-1)
	out := make([]common.Vertex, m*n)
	for i := range m {
		z := dz*float32(i) - 0.5*depth
		for j := range n {
			x := dx*float32(j) - 0.5*width
			out[i*n+j] = common.Vertex{
				Pos:    [3]float32{x, hillsHeight(x, z), z},
				Normal: hillsNormal(x, z),
				TexC:   [2]float32{float32(j) / float32(n-1), float32(i) / float32(m-1)},
			}
		}
	}
	return out
}

// staticGeometry uploads vertices and indices once into persistently mapped buffers that
// are never written again, so every frame in flight may read them.
func staticGeometry(dev device.Device, name string, vertices []common.Vertex, indices []uint32) (*render_item.Geometry, error) {
	g := &render_item.Geometry{
		Name:         name,
		VertexStride: vertexStride,
		IndexCount:   len(indices),
	}
	if len(vertices) > 0 {
		vb, err := uploadOnce(dev, name+"_vertices", common.SliceToBytes(vertices), device.UsageVertex)
		if err != nil {
			return nil, err
		}
		g.VertexBuffer = vb
	} else {
		g.Dynamic = true
	}
	ib, err := uploadOnce(dev, name+"_indices", common.SliceToBytes(indices), device.UsageIndex)
	if err != nil {
		releaseGeometry(g)
		return nil, err
	}
	g.IndexBuffer = ib
	return g, nil
}

func uploadOnce(dev device.Device, label string, data []byte, usage device.Usage) (device.Buffer, error) {
	buf, err := dev.AllocateUploadBuffer(label, uint64(len(data)), usage)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate %s: %w", label, err)
	}
	mem, err := buf.Map()
	if err != nil {
		buf.Release()
		return nil, fmt.Errorf("failed to map %s: %w", label, err)
	}
	copy(mem, data)
	return buf, nil
}

func releaseGeometry(g *render_item.Geometry) {
	if g == nil {
		return
	}
	if g.VertexBuffer != nil {
		g.VertexBuffer.Release()
		g.VertexBuffer = nil
	}
	if g.IndexBuffer != nil {
		g.IndexBuffer.Release()
		g.IndexBuffer = nil
	}
}

// wavesGeometry builds the geometry of the wave grid. Without a height map the vertices
// come from the frame resource every frame; with one a flat grid is displaced on the GPU.
func wavesGeometry(dev device.Device, rows, cols int, dx float32, displaced bool) (*render_item.Geometry, error) {
	var vertices []common.Vertex
	if displaced {
		vertices = wave.GridVertices(rows, cols, dx)
	}
	return staticGeometry(dev, "waves", vertices, wave.GridIndices(rows, cols))
}
