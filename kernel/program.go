package kernel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultTileSize is the workgroup edge used for full-size grids.
const DefaultTileSize = 8

// ErrNoWorkgroupSize is returned when a program carries no workgroup
// size attribute.
var ErrNoWorkgroupSize = errors.New("kernel: program has no workgroup size attribute")

// GenerateAutomaton renders the simulation compute program with the given
// activation bodies spliced into the per-channel activation functions.
// Each body is validated against the activation grammar before splicing,
// so a malformed body fails here instead of at shader compile time.
//
// The program exposes two entry points sharing one bind group layout:
// "init" seeds the output texture from a hash of the invocation index,
// and "update" applies the 3x3 convolution with toroidal wraparound
// followed by the clamped activations.
func GenerateAutomaton(red, green, blue string, tile int) (string, error) {
	for _, ch := range []struct {
		name, body string
	}{{"red", red}, {"green", green}, {"blue", blue}} {
		if _, err := CompileActivation(ch.body); err != nil {
			return "", fmt.Errorf("kernel: %s activation: %w", ch.name, err)
		}
	}
	if tile <= 0 {
		return "", fmt.Errorf("kernel: tile size must be positive, got %d", tile)
	}
	return fmt.Sprintf(automatonTemplate, tile, tile, red, green, blue, tile, tile), nil
}

const automatonTemplate = `@group(0) @binding(0)
var texture_in: texture_storage_2d<rgba8unorm, read>;

@group(0) @binding(1)
var texture_out: texture_storage_2d<rgba8unorm, write>;

@group(0) @binding(2)
var<uniform> filter_red: mat3x3f;
@group(0) @binding(3)
var<uniform> filter_green: mat3x3f;
@group(0) @binding(4)
var<uniform> filter_blue: mat3x3f;

fn hash(value: u32) -> u32 {
    var state = value;
    state = state ^ 2747636419u;
    state = state * 2654435769u;
    state = state ^ state >> 16u;
    state = state * 2654435769u;
    state = state ^ state >> 16u;
    state = state * 2654435769u;
    return state;
}

fn randomFloat(value: u32) -> f32 {
    return f32(hash(value)) / 4294967295.0;
}

@compute @workgroup_size(%d, %d, 1)
fn init(@builtin(global_invocation_id) invocation_id: vec3<u32>, @builtin(num_workgroups) num_workgroups: vec3<u32>) {
    let loc = vec2<i32>(invocation_id.xy);
    let dims = textureDimensions(texture_in);
    let total_pixels = dims.x * dims.y;

    let random_red = randomFloat(invocation_id.y * dims.x + invocation_id.x);
    let random_green = randomFloat(total_pixels + invocation_id.y * dims.x + invocation_id.x);
    let random_blue = randomFloat(u32(2) * total_pixels + invocation_id.y * dims.x + invocation_id.x);
    let color = vec4<f32>(random_red, random_green, random_blue, 1.0);

    textureStore(texture_out, loc, color);
}

fn get_cell(loc: vec2<i32>, offset_x: i32, offset_y: i32) -> vec3<f32> {
    let dims = vec2<i32>(textureDimensions(texture_in));
    var offset_loc = (loc + vec2<i32>(offset_x, offset_y) + dims) %% dims;
    let value: vec4<f32> = textureLoad(texture_in, offset_loc);
    return value.xyz;
}

fn nca_step(loc: vec2<i32>) -> vec3<f32> {
    var new_val = vec3<f32>(0., 0., 0.);
    for (var i: i32 = -1; i <= 1; i++) {
        for (var j: i32 = -1; j <= 1; j++) {
            new_val[0] += get_cell(loc, i, j)[0] * filter_red[i+1][j+1];
            new_val[1] += get_cell(loc, i, j)[1] * filter_green[i+1][j+1];
            new_val[2] += get_cell(loc, i, j)[2] * filter_blue[i+1][j+1];
        }
    }
    return new_val;
}

fn activation_fn_red(x: f32) -> f32 {
	%s
}

fn activation_fn_green(x: f32) -> f32 {
	%s
}

fn activation_fn_blue(x: f32) -> f32 {
	%s
}

@compute @workgroup_size(%d, %d, 1)
fn update(@builtin(global_invocation_id) invocation_id: vec3<u32>) {
    let loc = vec2<i32>(invocation_id.xy);
    let val = nca_step(loc);
    let color = vec4<f32>(
        clamp(activation_fn_red(val[0]), 0., 1.),
        clamp(activation_fn_green(val[1]), 0., 1.),
        clamp(activation_fn_blue(val[2]), 0., 1.),
        1.,
    );
    textureStore(texture_out, loc, color);
}
`

// GenerateDraw renders the brush overlay compute program. It stamps a
// capsule between the previous and current cursor positions onto the
// displayed texture, with a circle or square profile selected by the
// uniform's kind field.
func GenerateDraw(tile int) string {
	return fmt.Sprintf(drawTemplate, tile, tile)
}

const drawTemplate = `@group(0) @binding(0)
var texture: texture_storage_2d<rgba8unorm, read_write>;

struct DrawParams {
    draw_start: vec2<f32>,
    draw_end: vec2<f32>,
    brush_size: f32,
    brush_type: u32,
    brush_color: vec3<f32>,
}

@group(0) @binding(1)
var<uniform> params: DrawParams;

fn closest_on_segment(p: vec2<f32>, a: vec2<f32>, b: vec2<f32>) -> vec2<f32> {
    let ab = b - a;
    let len_sq = dot(ab, ab);
    if (len_sq == 0.0) {
        return a;
    }
    let t = clamp(dot(p - a, ab) / len_sq, 0.0, 1.0);
    return a + ab * t;
}

@compute @workgroup_size(%d, %d, 1)
fn draw(@builtin(global_invocation_id) invocation_id: vec3<u32>) {
    let loc = vec2<i32>(invocation_id.xy);
    let p = vec2<f32>(invocation_id.xy) + vec2<f32>(0.5, 0.5);
    let nearest = closest_on_segment(p, params.draw_start, params.draw_end);
    let d = p - nearest;

    var hit = false;
    if (params.brush_type == 0u) {
        hit = dot(d, d) <= params.brush_size * params.brush_size;
    } else {
        hit = max(abs(d.x), abs(d.y)) <= params.brush_size;
    }

    if (hit) {
        textureStore(texture, loc, vec4<f32>(params.brush_color, 1.0));
    }
}
`

// ActivationBodies extracts the three activation bodies back out of a
// generated automaton program. Used by the interpreting backend, which
// executes programs from their source text.
func ActivationBodies(wgsl string) (red, green, blue string, err error) {
	red, err = extractBody(wgsl, "activation_fn_red")
	if err != nil {
		return "", "", "", err
	}
	green, err = extractBody(wgsl, "activation_fn_green")
	if err != nil {
		return "", "", "", err
	}
	blue, err = extractBody(wgsl, "activation_fn_blue")
	if err != nil {
		return "", "", "", err
	}
	return red, green, blue, nil
}

func extractBody(wgsl, fn string) (string, error) {
	marker := "fn " + fn + "(x: f32) -> f32 {"
	start := strings.Index(wgsl, marker)
	if start < 0 {
		return "", fmt.Errorf("kernel: program has no %s function", fn)
	}
	rest := wgsl[start+len(marker):]
	end := strings.Index(rest, "\n}")
	if end < 0 {
		return "", fmt.Errorf("kernel: unterminated %s function", fn)
	}
	return strings.TrimSpace(rest[:end]), nil
}

// WorkgroupSize parses the workgroup edge from a generated program.
func WorkgroupSize(wgsl string) (int, error) {
	const attr = "@workgroup_size("
	i := strings.Index(wgsl, attr)
	if i < 0 {
		return 0, ErrNoWorkgroupSize
	}
	rest := wgsl[i+len(attr):]
	j := strings.IndexAny(rest, ",)")
	if j < 0 {
		return 0, ErrNoWorkgroupSize
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:j]))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("kernel: bad workgroup size %q", rest[:j])
	}
	return n, nil
}

// IsAutomatonProgram reports if a program looks like a generated
// simulation program.
func IsAutomatonProgram(wgsl string) bool {
	return strings.Contains(wgsl, "fn nca_step(")
}

// IsDrawProgram reports if a program looks like a generated brush
// overlay program.
func IsDrawProgram(wgsl string) bool {
	return strings.Contains(wgsl, "struct DrawParams")
}
