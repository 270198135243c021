package quiz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/tutor/internal/domain/quiz"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidate(t *testing.T) {
	Convey("Given generated content", t, func() {
		good := quiz.Content{Question: "What is BKT?", Options: []string{"A model", "A fish"}, Answer: "A model"}

		Convey("When it is well formed", func() {
			So(quiz.Validate(good), ShouldBeNil)
			So(quiz.Check(good).IsOk(), ShouldBeTrue)
		})

		cases := []struct {
			name    string
			content quiz.Content
		}{
			{"empty question", quiz.Content{Question: "  ", Options: []string{"a", "b"}, Answer: "a"}},
			{"single option", quiz.Content{Question: "q", Options: []string{"a"}, Answer: "a"}},
			{"no options", quiz.Content{Question: "q", Answer: "a"}},
			{"empty option", quiz.Content{Question: "q", Options: []string{"a", ""}, Answer: "a"}},
			{"answer not an option", quiz.Content{Question: "q", Options: []string{"a", "b"}, Answer: "c"}},
		}
		for _, tc := range cases {
			Convey("When it has "+tc.name, func() {
				err := quiz.Validate(tc.content)
				So(errors.Is(err, quiz.ErrMalformed), ShouldBeTrue)

				r := quiz.Check(tc.content)
				So(r.IsOk(), ShouldBeFalse)
				So(r.Reason(), ShouldNotBeEmpty)
			})
		}
	})
}

func TestFallback(t *testing.T) {
	Convey("Given a concept label", t, func() {
		c := quiz.Fallback("Entropy")

		Convey("Then the fallback is deterministic and valid", func() {
			So(c.Question, ShouldEqual, "What is Entropy?")
			So(c.Options, ShouldResemble, []string{"Concept", "Process", "Tool", "Metric"})
			So(c.Answer, ShouldEqual, "Concept")
			So(quiz.Validate(c), ShouldBeNil)
		})

		Convey("Then mutating a fallback does not leak into the next one", func() {
			c.Options[0] = "changed"
			So(quiz.Fallback("Entropy").Options[0], ShouldEqual, "Concept")
		})
	})
}

func TestResolve(t *testing.T) {
	good := quiz.Content{Question: "q", Options: []string{"a", "b"}, Answer: "b"}

	Convey("Given generator outcomes", t, func() {
		Convey("When the result is Ok", func() {
			c, fallback := quiz.Resolve("X", quiz.Ok(good), nil)
			So(fallback, ShouldBeFalse)
			So(c, ShouldResemble, good)
		})

		Convey("When the result is Malformed", func() {
			c, fallback := quiz.Resolve("X", quiz.Malformed("bad json"), nil)
			So(fallback, ShouldBeTrue)
			So(c.Question, ShouldEqual, "What is X?")
		})

		Convey("When the call failed", func() {
			c, fallback := quiz.Resolve("X", quiz.Ok(good), errors.New("timeout"))
			So(fallback, ShouldBeTrue)
			So(c.Answer, ShouldEqual, "Concept")
		})

		Convey("When no generator is configured", func() {
			r, err := quiz.Unavailable{}.Generate(context.Background(), "X", quiz.DifficultyMedium, "")
			So(err, ShouldBeNil)
			So(r.IsOk(), ShouldBeFalse)
		})
	})
}

func TestPrompt(t *testing.T) {
	Convey("Given a label, difficulty and context", t, func() {
		p := quiz.Prompt("Photosynthesis", quiz.DifficultyEasy, "plants use light")

		Convey("Then the prompt names all three", func() {
			So(p, ShouldContainSubstring, `"Photosynthesis"`)
			So(p, ShouldContainSubstring, "easy difficulty")
			So(p, ShouldContainSubstring, "plants use light")
		})

		Convey("Then an empty context omits the context block", func() {
			So(quiz.Prompt("X", quiz.DifficultyHard, ""), ShouldNotContainSubstring, "---")
		})
	})
}
