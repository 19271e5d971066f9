package filters

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soypat/watershed"
)

func initGPU(t *testing.T) (*wgpu.Device, *wgpu.Queue, bool) {
	t.Helper()

	instance := wgpu.CreateInstance(nil)
	if instance == nil {
		t.Skip("WebGPU not available")
		return nil, nil, false
	}

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceLowPower,
	})
	if err != nil {
		t.Skipf("No GPU adapter: %v", err)
		return nil, nil, false
	}

	device, err := adapter.RequestDevice(nil)
	if err != nil {
		t.Skipf("No GPU device: %v", err)
		return nil, nil, false
	}

	queue := device.GetQueue()
	return device, queue, true
}

func TestGradientShaderParses(t *testing.T) {
	require.NoError(t, validateShader(gradientShaderWGSL))
	assert.Error(t, validateShader("fn main( {"))
}

func TestGradientGPUMatchesCPU(t *testing.T) {
	device, queue, ok := initGPU(t)
	if !ok {
		return
	}

	rng := rand.New(rand.NewSource(42))
	const width, height = 131, 77 // Not a multiple of the workgroup size.
	srcImg := generateRandomSquaresRGBA(rng, width, height, 20, 5, 30)
	src := rgbaBuffer(srcImg)

	filter, err := NewGradientGPU(device, queue, LumaBT709, GradientSobel)
	require.NoError(t, err)
	defer filter.Cleanup()

	luma := make([]byte, width*height)
	want := make([]byte, width*height)
	got := make([]byte, width*height)
	for _, lm := range LumaModes {
		for _, op := range GradientOperators {
			filter.SetModes(lm, op)
			_, err = NewLuma(watershed.ShapeRGBA8888, lm, nil).Process(luma, src, nil)
			require.NoError(t, err)
			_, err = NewGradient(op, nil).Process(want, grayBuffer(width, height, luma...), nil)
			require.NoError(t, err)

			dims, err := filter.Process(got, src, nil)
			require.NoError(t, err)
			assert.Equal(t, watershed.ShapeGray8, dims.Shape)
			require.Equal(t, want, got, "luma %s operator %s", lm, op)
		}
	}
	if err := saveGrayAsPNG(got, width, height, "testdata/gradient_gpu_output.png"); err != nil {
		t.Logf("failed to save output: %v", err)
	}
}

func TestGradientGPURejectsInPlace(t *testing.T) {
	device, queue, ok := initGPU(t)
	if !ok {
		return
	}
	filter, err := NewGradientGPU(device, queue, LumaBT709, GradientSobel)
	require.NoError(t, err)
	defer filter.Cleanup()

	_, err = filter.Process(nil, watershed.NewBuffer(2, 2, watershed.ShapeRGBA8888), nil)
	assert.ErrorIs(t, err, errInPlaceNeighborhood)
}

func TestGradientGPUControlsConcurrentWithSetModes(t *testing.T) {
	// No device is needed: only the mode state is exercised.
	f := &GradientGPU{}
	f.SetModes(LumaBT709, GradientSobel)
	f.ctrls = f.buildControls()
	lumaCtl, opCtl := f.Controls()[0], f.Controls()[1]

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			assert.NoError(t, lumaCtl.ChangeValue(LumaModes[i%len(LumaModes)]))
			assert.NoError(t, opCtl.ChangeValue(GradientOperators[i%len(GradientOperators)]))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			f.SetModes(LumaBT601, GradientCentral)
		}
	}()
	wg.Wait()

	require.NoError(t, lumaCtl.ChangeValue(LumaAverage))
	require.NoError(t, opCtl.ChangeValue(GradientMorphological))
	luma, op := f.Modes()
	assert.Equal(t, LumaAverage, luma)
	assert.Equal(t, GradientMorphological, op)
	assert.Equal(t, [2]uint32{uint32(LumaAverage), uint32(GradientMorphological)}, [2]uint32{f.params[2], f.params[3]})
}
