package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/okian/tutor/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.DriverMemory)
			convey.So(cfg.DispatchBatchSize, convey.ShouldEqual, 10)
			convey.So(cfg.TargetRetention, convey.ShouldEqual, 0.7)
			convey.So(cfg.Lockout(), convey.ShouldEqual, 24*time.Hour)
			convey.So(cfg.QuizTimeout(), convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the interval parses", func() {
			d, err := cfg.Interval()
			convey.So(err, convey.ShouldBeNil)
			convey.So(d, convey.ShouldEqual, time.Minute)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs with invalid fields", t, func() {
		cases := []struct {
			name   string
			mutate func(c *config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"retention at one", func(c *config.Config) { c.TargetRetention = 1 }},
			{"retention at zero", func(c *config.Config) { c.TargetRetention = 0 }},
			{"zero batch", func(c *config.Config) { c.DispatchBatchSize = 0 }},
			{"zero lockout", func(c *config.Config) { c.LockoutHours = 0 }},
			{"unknown driver", func(c *config.Config) { c.StoreDriver = "mongo" }},
			{"sqlite without dsn", func(c *config.Config) { c.StoreDriver = config.DriverSQLite }},
			{"bad interval", func(c *config.Config) { c.DispatchInterval = "soon" }},
			{"negative interval", func(c *config.Config) { c.DispatchInterval = "-1m" }},
		}

		for _, tc := range cases {
			convey.Convey("When the config has "+tc.name, func() {
				cfg := config.New()
				tc.mutate(cfg)
				err := cfg.Validate()

				convey.Convey("Then validation fails with ErrInvalidConfig", func() {
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}
	})

	convey.Convey("Given a cron expression with a bad interval", t, func() {
		cfg := config.New()
		cfg.DispatchCron = "0 0 * * *"
		cfg.DispatchInterval = "never"

		convey.Convey("Then the interval is ignored", func() {
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}
