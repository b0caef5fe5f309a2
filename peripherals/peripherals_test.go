package peripherals_test

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/mcu/peripherals"
	"go.viam.com/mcu/timer/fake"
)

func TestRegistry(t *testing.T) {
	t0 := fake.NewTimer(1000)
	t1 := fake.NewTimer(2000)
	registry := peripherals.NewRegistry(t0, t1)
	test.That(t, registry.TimerCount(), test.ShouldEqual, 2)

	got, err := registry.Timer(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, t1)

	// Each timer is handed out at most once.
	_, err = registry.Timer(1)
	test.That(t, errors.Is(err, peripherals.ErrInvalidTimerResource), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "already taken")

	got, err = registry.Timer(0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, got, test.ShouldEqual, t0)
}

func TestRegistryOutOfRange(t *testing.T) {
	registry := peripherals.NewRegistry(fake.NewTimer(1000))
	_, err := registry.Timer(3)
	test.That(t, errors.Is(err, peripherals.ErrInvalidTimerResource), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no timer 3")
}
