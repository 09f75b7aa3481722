/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

//go:build audio

package audio

import (
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

// speakerSink plays through the system audio device.
type speakerSink struct{}

// DefaultSink returns the system speaker.
func DefaultSink() Sink { return speakerSink{} }

// HasDevice reports whether this build can reach an audio device.
func HasDevice() bool { return true }

func (speakerSink) Init(sr beep.SampleRate, bufferSize int) error { return speaker.Init(sr, bufferSize) }
func (speakerSink) Play(s beep.Streamer)                          { speaker.Play(s) }
func (speakerSink) Close()                                        { speaker.Close() }
