package detection

// stubCamera produces a fixed frame so bench setups without camera hardware
// can exercise the whole pipeline
type stubCamera struct{}

func (s *stubCamera) CaptureFrame() (Frame, bool) {
	return Frame("stub-frame"), true
}

func (s *stubCamera) Shutdown() {
	// stub
}

type stubDetector struct{}

func (s *stubDetector) Detect(frame Frame) []Detection {
	return []Detection{
		{Class: "person", Confidence: 0.97, Box: [4]float64{0.1, 0.1, 0.4, 0.9}},
	}
}

func (s *stubDetector) Shutdown() {
	// stub
}
