package wave

import (
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-waves/engine/device"
)

// TileSize is the edge of the square workgroup the update dispatch runs in.
const TileSize = 16

const (
	updatePipelineKey  = "wave_update"
	disturbPipelineKey = "wave_disturb"
)

// Root constant layouts, in uint32 slots:
//
//	update:  k0, k1, k2 (float bits), cols, rows
//	disturb: row, col, magnitude, max amplitude (float bits), cols
const (
	updateConstants  = 5
	disturbConstants = 5
)

const updateWGSL = `
struct Params {
    k0: f32,
    k1: f32,
    k2: f32,
    cols: u32,
    rows: u32,
}

@group(0) @binding(0) var<storage, read> prev: array<f32>;
@group(0) @binding(1) var<storage, read> curr: array<f32>;
@group(0) @binding(2) var<storage, read_write> next: array<f32>;
@group(1) @binding(0) var<uniform> params: Params;

@compute @workgroup_size(16, 16, 1)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    let x = id.x;
    let y = id.y;
    if (x == 0u || y == 0u || x >= params.cols - 1u || y >= params.rows - 1u) {
        return;
    }
    let i = y * params.cols + x;
    next[i] = params.k0 * prev[i] + params.k1 * curr[i] +
        params.k2 * (curr[i - params.cols] + curr[i + params.cols] + curr[i - 1u] + curr[i + 1u]);
}
`

const disturbWGSL = `
struct Params {
    row: u32,
    col: u32,
    magnitude: f32,
    limit: f32,
    cols: u32,
}

@group(0) @binding(0) var<storage, read_write> curr: array<f32>;
@group(1) @binding(0) var<uniform> params: Params;

fn bump(i: u32, m: f32) {
    curr[i] = clamp(curr[i] + m, -params.limit, params.limit);
}

@compute @workgroup_size(1, 1, 1)
fn main() {
    let i = params.row * params.cols + params.col;
    let quarter = 0.25 * params.magnitude;
    bump(i, params.magnitude);
    bump(i - 1u, quarter);
    bump(i + 1u, quarter);
    bump(i - params.cols, quarter);
    bump(i + params.cols, quarter);
}
`

// updateKernel is the CPU version of updateWGSL for the software device.
func updateKernel(inv device.KernelInvocation) error {
	if len(inv.Textures) != 3 || len(inv.Constants) < updateConstants {
		return fmt.Errorf("wave_update: want 3 textures and %d constants, got %d and %d", updateConstants, len(inv.Textures), len(inv.Constants))
	}
	k := [3]float32{
		math.Float32frombits(inv.Constants[0]),
		math.Float32frombits(inv.Constants[1]),
		math.Float32frombits(inv.Constants[2]),
	}
	cols, rows := int(inv.Constants[3]), int(inv.Constants[4])
	prev, curr, next := inv.Textures[0], inv.Textures[1], inv.Textures[2]
	if curr.Width != cols || curr.Height != rows {
		return fmt.Errorf("wave_update: texture %dx%d does not match grid %dx%d", curr.Width, curr.Height, cols, rows)
	}
	// Threads outside the dispatched tiles never run.
	stepRows(prev.Data, curr.Data, next.Data, cols, 1, min(rows-1, inv.Groups[1]*TileSize), k)
	return nil
}

// disturbKernel is the CPU version of disturbWGSL for the software device.
func disturbKernel(inv device.KernelInvocation) error {
	if len(inv.Textures) != 1 || len(inv.Constants) < disturbConstants {
		return fmt.Errorf("wave_disturb: want 1 texture and %d constants, got %d and %d", disturbConstants, len(inv.Textures), len(inv.Constants))
	}
	row, col := int(inv.Constants[0]), int(inv.Constants[1])
	magnitude := math.Float32frombits(inv.Constants[2])
	limit := math.Float32frombits(inv.Constants[3])
	cols := int(inv.Constants[4])
	curr := inv.Textures[0]
	if !InDisturbRange(curr.Height, curr.Width, row, col) {
		return fmt.Errorf("wave_disturb: (%d, %d) outside the disturb range", row, col)
	}
	disturbCells(curr.Data, cols, row, col, magnitude, limit)
	return nil
}
