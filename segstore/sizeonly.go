// Copyright © 2018 Wei Shen <shenwei356@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package segstore

import "sync"

// SizeOnly is a GroupStore stub for router/pipeline unit tests that care
// about routing decisions, not actual byte-level delta coding: Estimate
// and CodingCostVector both treat the payload as entirely literal.
type SizeOnly struct {
	mu       sync.Mutex
	refs     map[uint32][]byte
	rawCount map[uint32]uint32
	deltas   map[uint32][][]byte
}

// NewSizeOnly returns an empty SizeOnly store.
func NewSizeOnly() *SizeOnly {
	return &SizeOnly{refs: map[uint32][]byte{}, rawCount: map[uint32]uint32{}, deltas: map[uint32][][]byte{}}
}

func (s *SizeOnly) EnsureGroup(g uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refs[g]; ok {
		return false
	}
	s.refs[g] = nil
	return true
}

func (s *SizeOnly) AddRaw(g uint32, payload []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.rawCount[g]
	s.rawCount[g]++
	return id, nil
}

func (s *SizeOnly) AddReference(g uint32, payload []byte) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[g] = append([]byte(nil), payload...)
	return 0, nil
}

func (s *SizeOnly) AddDelta(g uint32, payload []byte, rc bool) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uint32(len(s.deltas[g]))
	s.deltas[g] = append(s.deltas[g], payload)
	return id, nil
}

// Estimate returns len(payload) unconditionally once g has a reference,
// the explicitly sanctioned "estimate = raw length" stub.
func (s *SizeOnly) Estimate(g uint32, payload []byte, rc bool) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.refs[g]; !ok || ref == nil {
		return 0, false
	}
	return uint64(len(payload)), true
}

func (s *SizeOnly) CodingCostVector(g uint32, payload []byte, rc bool, forward bool) ([]uint32, bool) {
	s.mu.Lock()
	_, ok := s.refs[g]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	out := make([]uint32, len(payload))
	for i := range out {
		out[i] = 1
	}
	return out, true
}
