//go:build !nogpu

package gpu

// remapShaderSource is the compute shader for projective plane remapping.
//
// Planes are stored as packed bytes in u32 storage words. Each invocation
// owns exactly one destination word (four output bytes), so no two
// invocations write the same word and the pass needs no atomics. For every
// output byte the shader maps its pixel coordinate through the 3x3
// projective matrix, clamps the source sample to the plane edge, and
// fetches the corresponding component byte (nearest-neighbor sampling).
const remapShaderSource = `
struct Params {
    src_width:   u32,
    src_height:  u32,
    src_stride:  u32,
    dst_width:   u32,
    dst_stride:  u32,
    pixel_bytes: u32,
    dst_size:    u32,
    _pad:        u32,
    m0: vec4<f32>,
    m1: vec4<f32>,
    m2: vec4<f32>,
}

@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage, read> src: array<u32>;
@group(0) @binding(2) var<storage, read_write> dst: array<u32>;

fn load_src_byte(offset: u32) -> u32 {
    let word = src[offset / 4u];
    return (word >> ((offset % 4u) * 8u)) & 0xFFu;
}

fn sample(x: u32, y: u32, comp: u32) -> u32 {
    let fx = f32(x);
    let fy = f32(y);
    let w = params.m2.x * fx + params.m2.y * fy + params.m2.z;
    var sx: i32 = 0;
    var sy: i32 = 0;
    if (abs(w) > 1e-6) {
        sx = i32(round((params.m0.x * fx + params.m0.y * fy + params.m0.z) / w));
        sy = i32(round((params.m1.x * fx + params.m1.y * fy + params.m1.z) / w));
    }
    sx = clamp(sx, 0, i32(params.src_width) - 1);
    sy = clamp(sy, 0, i32(params.src_height) - 1);
    let offset = u32(sy) * params.src_stride + u32(sx) * params.pixel_bytes + comp;
    return load_src_byte(offset);
}

@compute @workgroup_size(64, 1, 1)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let word_index = gid.x;
    let base = word_index * 4u;
    if (base >= params.dst_size) {
        return;
    }

    var out_word: u32 = 0u;
    for (var b: u32 = 0u; b < 4u; b = b + 1u) {
        let offset = base + b;
        if (offset >= params.dst_size) {
            break;
        }
        let y = offset / params.dst_stride;
        let byte_x = offset % params.dst_stride;
        let px = byte_x / params.pixel_bytes;
        var value: u32 = 0u;
        if (px < params.dst_width) {
            value = sample(px, y, byte_x % params.pixel_bytes);
        }
        out_word = out_word | (value << (b * 8u));
    }
    dst[word_index] = out_word;
}
`
