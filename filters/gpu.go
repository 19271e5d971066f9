package filters

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/gogpu/naga"
	"github.com/soypat/watershed"
)

// computeGPU runs a single-entry-point compute shader over a width×height
// grid with one packed u32 input and one u32 output per pixel.
// Bindings: 0 uniform params (4×u32), 1 storage input, 2 storage output.
type computeGPU struct {
	mu     sync.Mutex
	gpu    gpuResources
	params [4]uint32 // [0]=width, [1]=height, [2..3]=shader specific.
	inited bool
}

type gpuResources struct {
	device        *wgpu.Device
	queue         *wgpu.Queue
	shaderModule  *wgpu.ShaderModule
	pipeline      *wgpu.ComputePipeline
	bindLayout    *wgpu.BindGroupLayout
	uniformBuffer *wgpu.Buffer
	inputBuffer   *wgpu.Buffer
	outputBuffer  *wgpu.Buffer
	width, height int
	output        []uint32
}

// validateShader runs the WGSL front end on code so syntax errors surface as
// Go errors with line information instead of device-lost callbacks.
func validateShader(code string) error {
	if _, err := naga.Parse(code); err != nil {
		return fmt.Errorf("wgsl: %w", err)
	}
	return nil
}

// init compiles code and creates the pipeline and uniform buffer. Callers hold no lock.
func (c *computeGPU) init(device *wgpu.Device, queue *wgpu.Queue, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validateShader(code); err != nil {
		return err
	}
	c.gpu.device = device
	c.gpu.queue = queue

	var err error
	c.gpu.shaderModule, err = device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: code},
	})
	if err != nil {
		return fmt.Errorf("shader module: %w", err)
	}

	c.gpu.pipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     c.gpu.shaderModule,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fmt.Errorf("compute pipeline: %w", err)
	}
	c.gpu.bindLayout = c.gpu.pipeline.GetBindGroupLayout(0)

	c.gpu.uniformBuffer, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  16, // 4 x u32
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("uniform buffer: %w", err)
	}
	c.inited = true
	return nil
}

// run uploads packed input, dispatches the shader and returns the read back
// output, valid until the next call. Caller must hold c.mu.
func (c *computeGPU) run(packed []byte, w, h int) ([]uint32, error) {
	if !c.inited {
		return nil, fmt.Errorf("gpu filter not initialized")
	}
	if err := c.ensureBuffers(w, h); err != nil {
		return nil, err
	}
	c.gpu.queue.WriteBuffer(c.gpu.inputBuffer, 0, packed)
	c.params[0], c.params[1] = uint32(w), uint32(h)
	c.gpu.queue.WriteBuffer(c.gpu.uniformBuffer, 0, wgpu.ToBytes(c.params[:]))
	if err := c.dispatch(w, h); err != nil {
		return nil, err
	}
	if err := c.readback(); err != nil {
		return nil, err
	}
	return c.gpu.output, nil
}

func (c *computeGPU) ensureBuffers(w, h int) error {
	if w == c.gpu.width && h == c.gpu.height {
		return nil
	}
	c.releaseImageBuffers()

	size := uint64(w * h * 4)
	var err error
	c.gpu.inputBuffer, err = c.gpu.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("input buffer: %w", err)
	}
	c.gpu.outputBuffer, err = c.gpu.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("output buffer: %w", err)
	}
	c.gpu.output = make([]uint32, w*h)
	c.gpu.width, c.gpu.height = w, h
	watershed.Logger().Debug("gpu buffers allocated", "width", w, "height", h, "bytes", 2*size)
	return nil
}

func (c *computeGPU) dispatch(w, h int) error {
	bindGroup, err := c.gpu.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout: c.gpu.bindLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: c.gpu.uniformBuffer, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: c.gpu.inputBuffer, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: c.gpu.outputBuffer, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return fmt.Errorf("bind group: %w", err)
	}
	defer bindGroup.Release()

	encoder, err := c.gpu.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("command encoder: %w", err)
	}
	defer encoder.Release()

	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(c.gpu.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.DispatchWorkgroups(uint32((w+7)/8), uint32((h+7)/8), 1)
	pass.End()
	pass.Release()

	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish: %w", err)
	}
	c.gpu.queue.Submit(cmd)
	return nil
}

func (c *computeGPU) readback() error {
	size := uint64(c.gpu.width * c.gpu.height * 4)

	staging, err := c.gpu.device.CreateBuffer(&wgpu.BufferDescriptor{
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("staging buffer: %w", err)
	}
	defer staging.Release()

	encoder, err := c.gpu.device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("readback encoder: %w", err)
	}
	encoder.CopyBufferToBuffer(c.gpu.outputBuffer, 0, staging, 0, size)
	cmd, err := encoder.Finish(nil)
	encoder.Release()
	if err != nil {
		return fmt.Errorf("readback finish: %w", err)
	}

	c.gpu.queue.Submit(cmd)
	c.gpu.device.Poll(true, nil)

	done := make(chan error, 1)
	staging.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			done <- fmt.Errorf("map failed: %v", status)
			return
		}
		done <- nil
	})
	c.gpu.device.Poll(true, nil)
	if err := <-done; err != nil {
		return err
	}

	raw := staging.GetMappedRange(0, uint(size))
	for i := range c.gpu.output {
		c.gpu.output[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	staging.Unmap()
	return nil
}

func (c *computeGPU) releaseImageBuffers() {
	if c.gpu.inputBuffer != nil {
		c.gpu.inputBuffer.Release()
		c.gpu.inputBuffer = nil
	}
	if c.gpu.outputBuffer != nil {
		c.gpu.outputBuffer.Release()
		c.gpu.outputBuffer = nil
	}
	c.gpu.width, c.gpu.height = 0, 0
}

// Cleanup releases all GPU resources.
func (c *computeGPU) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.releaseImageBuffers()
	if c.gpu.uniformBuffer != nil {
		c.gpu.uniformBuffer.Release()
		c.gpu.uniformBuffer = nil
	}
	if c.gpu.bindLayout != nil {
		c.gpu.bindLayout.Release()
		c.gpu.bindLayout = nil
	}
	if c.gpu.pipeline != nil {
		c.gpu.pipeline.Release()
		c.gpu.pipeline = nil
	}
	if c.gpu.shaderModule != nil {
		c.gpu.shaderModule.Release()
		c.gpu.shaderModule = nil
	}
	c.inited = false
}
