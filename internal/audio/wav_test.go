package audio

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

// generateSineInt16 creates a PCM-16 sine wave test signal
func generateSineInt16(freq float64, sampleRate, numSamples int, amplitude float64) []int16 {
	samples := make([]int16, numSamples)
	for i := range samples {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		samples[i] = int16(v * 32767)
	}
	return samples
}

// generateSineFloat32 creates a normalized float32 sine wave test signal
func generateSineFloat32(freq float64, sampleRate, numSamples int, amplitude float64) []float32 {
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = float32(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sampleRate := 16000
	original := generateSineInt16(440, sampleRate, sampleRate, 0.5)

	encoded, err := EncodeWAV(original, sampleRate)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, decodedRate, err := DecodeWAV(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if decodedRate != sampleRate {
		t.Errorf("expected sample rate %d, got %d", sampleRate, decodedRate)
	}
	if len(decoded) != len(original) {
		t.Fatalf("expected %d samples, got %d", len(original), len(decoded))
	}
	for i := range original {
		if decoded[i] != original[i] {
			t.Fatalf("sample %d mismatch: %d != %d", i, decoded[i], original[i])
		}
	}
}

func TestEncodeEmptySamples(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("expected error for empty samples")
	}
}

func TestEncodeInvalidSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
}

func TestDecodeTruncatedData(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("RIFF")); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestDecodeInvalidHeader(t *testing.T) {
	data := make([]byte, 100)
	copy(data, "NOTRIFF!")
	if _, _, err := DecodeWAV(data); err == nil {
		t.Error("expected error for invalid header")
	}
}

func TestFloat32ToPCM16Clamping(t *testing.T) {
	pcm := Float32ToPCM16([]float32{0, 0.5, -0.5, 1.0, -1.0, 2.0, -2.0})

	if pcm[0] != 0 {
		t.Errorf("expected 0, got %d", pcm[0])
	}
	if pcm[3] != 32767 {
		t.Errorf("expected full scale 32767, got %d", pcm[3])
	}
	if pcm[5] != 32767 {
		t.Errorf("expected clamp to 32767, got %d", pcm[5])
	}
	if pcm[6] != -32768 {
		t.Errorf("expected clamp to -32768, got %d", pcm[6])
	}
}

func TestWriteWAVFileRoundTrip(t *testing.T) {
	sampleRate := 16000
	original := generateSineFloat32(440, sampleRate, sampleRate/2, 0.3)
	path := filepath.Join(t.TempDir(), "test.wav")

	if err := WriteWAVFile(path, original, sampleRate); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	decoded, decodedRate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decodedRate != sampleRate {
		t.Errorf("expected sample rate %d, got %d", sampleRate, decodedRate)
	}
	if len(decoded) != len(original) {
		t.Fatalf("expected %d samples, got %d", len(original), len(decoded))
	}

	// Quantization to 16 bits loses at most one step
	for i := range original {
		got := float64(decoded[i]) / 32767.0
		want := float64(original[i])
		if math.Abs(got-want) > 1.0/32767.0 {
			t.Fatalf("sample %d quantization error too large: got %f, want %f", i, got, want)
		}
	}
}

func TestGetWAVDuration(t *testing.T) {
	sampleRate := 16000
	samples := generateSineInt16(440, sampleRate, sampleRate*3, 0.5)

	encoded, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	duration, err := GetWAVDuration(encoded)
	if err != nil {
		t.Fatalf("duration failed: %v", err)
	}
	if math.Abs(duration-3.0) > 0.001 {
		t.Errorf("expected duration 3.0s, got %f", duration)
	}
}

func TestGetWAVInfo(t *testing.T) {
	sampleRate := 16000
	samples := generateSineInt16(440, sampleRate, sampleRate, 0.5)

	encoded, err := EncodeWAV(samples, sampleRate)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	info, err := GetWAVInfo(encoded)
	if err != nil {
		t.Fatalf("info failed: %v", err)
	}
	if info.SampleRate != sampleRate {
		t.Errorf("expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}
	if info.Channels != 1 {
		t.Errorf("expected 1 channel, got %d", info.Channels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("expected 16 bits, got %d", info.BitsPerSample)
	}
	if math.Abs(info.Duration-1.0) > 0.001 {
		t.Errorf("expected duration 1.0s, got %f", info.Duration)
	}
}

func TestValidateWAV(t *testing.T) {
	encoded, err := EncodeWAV([]int16{1, 2, 3, 4}, 16000)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	if err := ValidateWAV(encoded); err != nil {
		t.Errorf("valid WAV rejected: %v", err)
	}

	if err := ValidateWAV([]byte("too short")); err == nil {
		t.Error("expected error for short data")
	}
}
