// Package native mirrors the C ABI of the Steam Audio runtime (libphonon):
// status codes, opaque handles, and the settings and parameter structs that
// cross the boundary. Field order and widths follow phonon.h 4.6.
//
// Nothing in this package owns memory or enforces lifetimes; see package
// spatial for the ownership layer.
package native

// Status is the result code returned by native factory calls.
type Status int32

const (
	StatusSuccess Status = iota
	StatusFailure
	StatusOutOfMemory
	StatusInitialization
)

// Handle is an opaque native object reference. Only bit-pattern equality is
// meaningful.
type Handle uintptr

// Callback is a native function pointer.
type Callback uintptr

// Bool is the 32-bit boolean of the C API.
type Bool int32

const (
	False Bool = 0
	True  Bool = 1
)

// BoolOf converts b to a native Bool.
func BoolOf(b bool) Bool {
	if b {
		return True
	}
	return False
}

// EffectState is the tail signal returned from effect apply and tail calls.
type EffectState int32

const (
	EffectTailRemaining EffectState = iota
	EffectTailComplete
)

type Vector3 struct {
	X, Y, Z float32
}

// CoordinateSpace3 is an orthonormal basis plus origin.
type CoordinateSpace3 struct {
	Right  Vector3
	Up     Vector3
	Ahead  Vector3
	Origin Vector3
}

// AudioBuffer is the deinterleaved buffer descriptor handed to every effect.
// Data points at a table of NumChannels channel pointers.
type AudioBuffer struct {
	NumChannels int32
	NumSamples  int32
	Data        **float32
}

type AudioSettings struct {
	SamplingRate int32
	FrameSize    int32
}

type SIMDLevel int32

const (
	SIMDSSE2 SIMDLevel = iota
	SIMDSSE4
	SIMDAVX
	SIMDAVX2
	SIMDAVX512
	SIMDNEON = SIMDSSE2
)

type ContextFlags int32

const ContextFlagValidation ContextFlags = 1 << 0

type LogLevel int32

const (
	LogInfo LogLevel = iota
	LogWarning
	LogError
	LogDebug
)

type ContextSettings struct {
	Version          uint32
	LogCallback      Callback
	AllocateCallback Callback
	FreeCallback     Callback
	SIMDLevel        SIMDLevel
	Flags            ContextFlags
}

type HRTFType int32

const (
	HRTFDefault HRTFType = iota
	HRTFSOFA
)

type HRTFNormType int32

const (
	HRTFNormNone HRTFNormType = iota
	HRTFNormRMS
)

type HRTFInterpolation int32

const (
	HRTFInterpolationNearest HRTFInterpolation = iota
	HRTFInterpolationBilinear
)

type HRTFSettings struct {
	Type         HRTFType
	SOFAFileName *byte
	SOFAData     *byte
	SOFADataSize int32
	Volume       float32
	NormType     HRTFNormType
}

type OpenCLDeviceType int32

const (
	OpenCLDeviceAny OpenCLDeviceType = iota
	OpenCLDeviceCPU
	OpenCLDeviceGPU
)

type OpenCLDeviceSettings struct {
	Type                   OpenCLDeviceType
	NumCUsToReserve        int32
	FractionCUsForIRUpdate float32
	RequiresTAN            Bool
}

// OpenCLDeviceDesc describes one entry of an OpenCL device list. The string
// fields are NUL-terminated and owned by the list.
type OpenCLDeviceDesc struct {
	Platform          uintptr
	PlatformName      *byte
	PlatformVendor    *byte
	PlatformVersion   *byte
	Device            uintptr
	DeviceName        *byte
	DeviceVendor      *byte
	DeviceVersion     *byte
	Type              OpenCLDeviceType
	NumConvolutionCUs int32
	NumIRUpdateCUs    int32
	Granularity       int32
	PerfScore         float32
}

type TrueAudioNextDeviceSettings struct {
	FrameSize  int32
	IRSize     int32
	Order      int32
	MaxSources int32
}

type SerializedObjectSettings struct {
	Data *byte
	Size uintptr
}

type SpeakerLayoutType int32

const (
	SpeakerLayoutMono SpeakerLayoutType = iota
	SpeakerLayoutStereo
	SpeakerLayoutQuadraphonic
	SpeakerLayoutSurround51
	SpeakerLayoutSurround71
	SpeakerLayoutCustom
)

type SpeakerLayout struct {
	Type        SpeakerLayoutType
	NumSpeakers int32
	Speakers    *Vector3
}

type BinauralEffectSettings struct {
	HRTF Handle
}

type BinauralEffectParams struct {
	Direction     Vector3
	Interpolation HRTFInterpolation
	SpatialBlend  float32
	HRTF          Handle
	PeakDelays    *float32
}

type PanningEffectSettings struct {
	SpeakerLayout SpeakerLayout
}

type PanningEffectParams struct {
	Direction Vector3
}

type VirtualSurroundEffectSettings struct {
	SpeakerLayout SpeakerLayout
	HRTF          Handle
}

type VirtualSurroundEffectParams struct {
	HRTF Handle
}

type DirectEffectFlags int32

const (
	DirectApplyDistanceAttenuation DirectEffectFlags = 1 << iota
	DirectApplyAirAbsorption
	DirectApplyDirectivity
	DirectApplyOcclusion
	DirectApplyTransmission
)

type TransmissionType int32

const (
	TransmissionFrequencyIndependent TransmissionType = iota
	TransmissionFrequencyDependent
)

type DirectEffectSettings struct {
	NumChannels int32
}

type DirectEffectParams struct {
	Flags               DirectEffectFlags
	TransmissionType    TransmissionType
	DistanceAttenuation float32
	AirAbsorption       [3]float32
	Directivity         float32
	Occlusion           float32
	Transmission        [3]float32
}

type AmbisonicsEncodeEffectSettings struct {
	MaxOrder int32
}

type AmbisonicsEncodeEffectParams struct {
	Direction Vector3
	Order     int32
}

type AmbisonicsDecodeEffectSettings struct {
	SpeakerLayout SpeakerLayout
	HRTF          Handle
	MaxOrder      int32
}

type AmbisonicsDecodeEffectParams struct {
	Order       int32
	HRTF        Handle
	Orientation CoordinateSpace3
	Binaural    Bool
}

type AmbisonicsPanningEffectSettings struct {
	SpeakerLayout SpeakerLayout
	MaxOrder      int32
}

type AmbisonicsPanningEffectParams struct {
	Order int32
}

type AmbisonicsBinauralEffectSettings struct {
	HRTF     Handle
	MaxOrder int32
}

type AmbisonicsBinauralEffectParams struct {
	HRTF  Handle
	Order int32
}

type AmbisonicsRotationEffectSettings struct {
	MaxOrder int32
}

type AmbisonicsRotationEffectParams struct {
	Orientation CoordinateSpace3
	Order       int32
}

type SceneType int32

const (
	SceneDefault SceneType = iota
	SceneEmbree
	SceneRadeonRays
	SceneCustom
)

type BakedDataType int32

const (
	BakedDataReflections BakedDataType = iota
	BakedDataPathing
)

type BakedDataVariation int32

const (
	BakedDataReverb BakedDataVariation = iota
	BakedDataStaticSource
	BakedDataStaticListener
	BakedDataDynamic
)

type Sphere struct {
	Center Vector3
	Radius float32
}

type BakedDataIdentifier struct {
	Type              BakedDataType
	Variation         BakedDataVariation
	EndpointInfluence Sphere
}

type ReflectionsBakeFlags int32

const (
	BakeConvolution ReflectionsBakeFlags = 1 << iota
	BakeParametric
)

type ReflectionsBakeParams struct {
	Scene                 Handle
	Probes                Handle
	SceneType             SceneType
	Identifier            BakedDataIdentifier
	BakeFlags             ReflectionsBakeFlags
	NumRays               int32
	NumDiffuseSamples     int32
	NumBounces            int32
	SimulatedDuration     float32
	SavedDuration         float32
	Order                 int32
	NumThreads            int32
	RayBatchSize          int32
	IrradianceMinDistance float32
	BakeBatchSize         int32
	OpenCLDevice          Handle
	RadeonRaysDevice      Handle
}

type PathBakeParams struct {
	Scene      Handle
	Probes     Handle
	Identifier BakedDataIdentifier
	NumSamples int32
	Radius     float32
	Threshold  float32
	VisRange   float32
	PathRange  float32
	NumThreads int32
}
