/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type LoggingTestSuite struct {
	suite.Suite
	saved Level
}

func (s *LoggingTestSuite) SetupTest() {
	s.saved = CurrentLevel()
}

func (s *LoggingTestSuite) TearDownTest() {
	SetLevel(s.saved)
}

func (s *LoggingTestSuite) TestLogColor() {
	SetLevel(LevelTrace)
	var out bytes.Buffer
	l := New("color", &out)

	l.Tracef("this is tracef %s", "hello world")
	l.Infof("this is infof %s", "hello world")
	l.Info("this is info")
	l.Debugf("this is debugf %s", "hello world")
	l.Warnf("this is warnf %s", "hello world")
	l.Errorf("this is errorf %s", "hello world")
	l.Error("this is error")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	s.Require().Len(lines, 7)
	s.Contains(lines[0], magenta+"Trace")
	s.Contains(lines[0], "logging_test.go:")
	s.Contains(lines[0], "color this is tracef hello world")
	s.Contains(lines[6], red+"Error")
}

func (s *LoggingTestSuite) TestLevelFilters() {
	SetLevel(LevelError)
	var out bytes.Buffer
	l := New("filter", &out)
	l.Warnf("dropped")
	l.Infof("dropped")
	s.Empty(out.String())
	l.Errorf("kept %d", 1)
	s.Contains(out.String(), "kept 1")

	SetLevel(LevelNoPrint)
	out.Reset()
	l.Errorf("dropped")
	s.Empty(out.String())
}

func (s *LoggingTestSuite) TestNamedSharesOutput() {
	SetLevel(LevelInfo)
	var out bytes.Buffer
	l := New("parent", &out).Named("child")
	l.Infof("hello")
	s.Contains(out.String(), "child hello")
}

func (s *LoggingTestSuite) TestParseLevel() {
	for in, want := range map[string]Level{
		"0":     LevelTrace,
		"3":     LevelWarn,
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		" warn": LevelWarn,
		"none":  LevelNoPrint,
	} {
		got, err := ParseLevel(in)
		s.Require().NoError(err, in)
		s.Equal(want, got, in)
	}
	_, err := ParseLevel("9")
	s.Error(err)
	_, err = ParseLevel("loud")
	s.Error(err)
}

func (s *LoggingTestSuite) TestSetLevelIgnoresOutOfRange() {
	SetLevel(LevelInfo)
	SetLevel(Level(42))
	s.Equal(LevelInfo, CurrentLevel())
	s.Equal("Info", LevelInfo.String())
	s.Equal("None", LevelNoPrint.String())
}

func TestLoggingTestSuite(t *testing.T) {
	suite.Run(t, new(LoggingTestSuite))
}
