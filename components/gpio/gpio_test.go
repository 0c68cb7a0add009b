package gpio

import (
	"testing"

	"go.viam.com/test"
)

func TestBCM(t *testing.T) {
	for _, tc := range []struct {
		pin Pin
		bcm int
	}{
		{7, 4},
		{8, 14},
		{12, 18},
		{19, 10},
		{22, 25},
		{26, 7},
		{38, 20},
	} {
		bcm, ok := BCM(tc.pin)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, bcm, test.ShouldEqual, tc.bcm)
	}

	for _, pin := range []Pin{0, 1, 2, 4, 6, 9, 14, 17, 20, 25, 30, 34, 39, 41} {
		_, ok := BCM(pin)
		test.That(t, ok, test.ShouldBeFalse)
	}
}

func TestHeaderIsOneToOne(t *testing.T) {
	seen := map[int]Pin{}
	for pin, bcm := range headerToBCM {
		other, dup := seen[bcm]
		test.That(t, dup, test.ShouldBeFalse)
		test.That(t, other, test.ShouldEqual, Pin(0))
		seen[bcm] = pin
	}
	test.That(t, seen, test.ShouldHaveLength, 28)
}

func TestStrings(t *testing.T) {
	test.That(t, Pin(8).String(), test.ShouldEqual, "P1-8")
	test.That(t, Input.String(), test.ShouldEqual, "input")
	test.That(t, Output.String(), test.ShouldEqual, "output")
	test.That(t, Mode(7).String(), test.ShouldEqual, "mode(7)")
	test.That(t, PullNone.String(), test.ShouldEqual, "none")
	test.That(t, PullUp.String(), test.ShouldEqual, "up")
	test.That(t, PullDown.String(), test.ShouldEqual, "down")
}
