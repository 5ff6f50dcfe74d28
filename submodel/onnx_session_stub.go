//go:build !onnx

package submodel

import "errors"

// newOnnxSession is the default sessionFactory when built without the
// "onnx" tag (no ONNX Runtime binding linked in). Build with -tags onnx to
// use the real yalue/onnxruntime_go backend in onnx_session.go.
func newOnnxSession(path string) (session, error) {
	return nil, errors.New("submodel: onnx runtime not available: build with -tags onnx")
}
