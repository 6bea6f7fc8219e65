// Package shader expands and reflects WGSL sources. The pre-processor injects the shared
// constant buffer structs; reflection yields the pipeline layout information a WebGPU
// backend needs: entry points, workgroup sizes, bind group layouts and vertex layouts.
package shader

import (
	"errors"
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"
)

// ErrUnsupportedBinding is returned when a WGSL resource declaration cannot be mapped to a
// bind group layout entry.
var ErrUnsupportedBinding = errors.New("shader: unsupported resource binding")

// ErrMalformedAnnotation is returned by PreProcessor.Process for an annotation it cannot parse.
var ErrMalformedAnnotation = errors.New("shader: malformed annotation")

// ErrNoEntryPoint is returned when a source has no entry point for the requested stage.
var ErrNoEntryPoint = errors.New("shader: no entry point")

// Stage identifies the pipeline stage a WGSL source is reflected for.
type Stage int

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

func (s Stage) visibility() wgpu.ShaderStage {
	switch s {
	case StageVertex:
		return wgpu.ShaderStageVertex
	case StageFragment:
		return wgpu.ShaderStageFragment
	default:
		return wgpu.ShaderStageCompute
	}
}

// Reflection is what Reflect learned about one stage of a WGSL source.
type Reflection struct {
	Stage      Stage
	EntryPoint string
	// WorkgroupSize is [1, 1, 1] for non-compute stages.
	WorkgroupSize [3]uint32
	// BindGroups holds one layout per declared group index. Buffer entries carry the
	// byte size of the bound type in MinBindingSize.
	BindGroups map[int]wgpu.BindGroupLayoutDescriptor
	// Names maps group and binding to the declared variable name.
	Names map[int]map[int]string
	// VertexLayouts holds one layout per vertex input struct (vertex stage only).
	VertexLayouts []wgpu.VertexBufferLayout
	// StructSizes holds the host-shareable size of every struct that could be resolved.
	StructSizes map[string]uint64
}

// Reflect parses source for the given stage.
//
// Parameters:
//   - source: the WGSL source
//   - stage: the stage whose entry point and visibility to use
//
// Returns:
//   - Reflection: the reflected layout information
//   - error: ErrNoEntryPoint or ErrUnsupportedBinding
func Reflect(source string, stage Stage) (Reflection, error) {
	cleaned := stripComments(source)
	r := Reflection{
		Stage:         stage,
		EntryPoint:    parseEntryPoint(cleaned, stage),
		WorkgroupSize: [3]uint32{1, 1, 1},
	}
	if r.EntryPoint == "" {
		return Reflection{}, fmt.Errorf("%s stage: %w", stage, ErrNoEntryPoint)
	}
	if stage == StageCompute {
		r.WorkgroupSize = parseWorkgroupSize(cleaned)
	}

	structs := parseStructBlocks(cleaned)
	layouts := computeStructSizes(structs)
	r.StructSizes = make(map[string]uint64, len(layouts))
	for name, l := range layouts {
		r.StructSizes[name] = l.size
	}

	groups, names, err := parseBindGroupLayouts(cleaned, stage.visibility(), layouts)
	if err != nil {
		return Reflection{}, err
	}
	r.BindGroups = groups
	r.Names = names

	if stage == StageVertex {
		r.VertexLayouts = parseVertexLayouts(structs)
	}
	return r, nil
}

// GroupCount returns one past the highest declared group index.
func (r Reflection) GroupCount() int {
	n := 0
	for g := range r.BindGroups {
		n = max(n, g+1)
	}
	return n
}

// MergeBindGroups combines the bind group layouts of two stages. Bindings declared by
// both stages get the union of their visibilities.
//
// Parameters:
//   - a: the layouts of the first stage
//   - b: the layouts of the second stage
//
// Returns:
//   - map[int]wgpu.BindGroupLayoutDescriptor: the merged layouts
func MergeBindGroups(a, b map[int]wgpu.BindGroupLayoutDescriptor) map[int]wgpu.BindGroupLayoutDescriptor {
	merged := make(map[int]wgpu.BindGroupLayoutDescriptor, max(len(a), len(b)))
	for g, desc := range a {
		merged[g] = desc
	}
	for g, desc := range b {
		existing, ok := merged[g]
		if !ok {
			merged[g] = desc
			continue
		}
		byBinding := make(map[uint32]wgpu.BindGroupLayoutEntry, len(existing.Entries)+len(desc.Entries))
		for _, e := range existing.Entries {
			byBinding[e.Binding] = e
		}
		for _, e := range desc.Entries {
			if prev, ok := byBinding[e.Binding]; ok {
				prev.Visibility |= e.Visibility
				byBinding[e.Binding] = prev
			} else {
				byBinding[e.Binding] = e
			}
		}
		merged[g] = wgpu.BindGroupLayoutDescriptor{Label: existing.Label, Entries: sortedEntries(byBinding)}
	}
	return merged
}

func sortedEntries(byBinding map[uint32]wgpu.BindGroupLayoutEntry) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(byBinding))
	for _, e := range byBinding {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Binding < entries[j].Binding })
	return entries
}
