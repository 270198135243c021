package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/okian/tutor/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with defaults", func() {
			So(logger.Init(), ShouldBeNil)

			Convey("Then Get returns a usable logger", func() {
				l := logger.Get()
				So(l, ShouldNotBeNil)
				l.Info(context.Background(), "test message", logger.String("k", "v"))
				So(logger.Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := logger.InitWith(logger.Options{Format: "xml"})

			Convey("Then it should fail", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestLoggerJSONOutput(t *testing.T) {
	Convey("Given a JSON logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(logger.InitWith(logger.Options{Format: "json", Output: &buf}), ShouldBeNil)
		defer func() { _ = logger.Init() }()

		Convey("When logging through a named logger", func() {
			logger.Named("dispatcher").Info(context.Background(), "due reviews",
				logger.Int("count", 3),
				logger.Bool("manual", true),
				logger.Int64("latency_ms", 1500),
			)

			Convey("Then the record carries fields, component and source", func() {
				var rec map[string]any
				So(json.Unmarshal(buf.Bytes(), &rec), ShouldBeNil)
				So(rec["msg"], ShouldEqual, "due reviews")
				So(rec["count"], ShouldEqual, float64(3))
				So(rec["manual"], ShouldEqual, true)
				So(rec["latency_ms"], ShouldEqual, float64(1500))
				So(rec["component"], ShouldEqual, "dispatcher")
				So(rec["source"], ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the configured level", func() {
			So(logger.SetLevelString("warn"), ShouldBeNil)
			logger.Get().Info(context.Background(), "hidden")

			Convey("Then nothing is written", func() {
				So(strings.TrimSpace(buf.String()), ShouldBeEmpty)
			})
		})
	})
}

func TestSetLevelString(t *testing.T) {
	Convey("Given level strings", t, func() {
		for _, lvl := range []string{"debug", "info", "", "WARN", "warning", "error"} {
			So(logger.SetLevelString(lvl), ShouldBeNil)
		}
		So(logger.SetLevelString("verbose"), ShouldNotBeNil)
		So(logger.SetLevelString("info"), ShouldBeNil)
	})
}
