package core

import "testing"

func TestItoa(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{0, "0"},
		{7, "7"},
		{42, "42"},
		{-1, "-1"},
		{-1000000, "-1000000"},
		{2147483647, "2147483647"},
	}
	for _, c := range cases {
		if got := itoa(c.n); got != c.want {
			t.Errorf("itoa(%d) = %q, expected %q", c.n, got, c.want)
		}
	}
}

func TestUtoa(t *testing.T) {
	cases := []struct {
		n    uint32
		want string
	}{
		{0, "0"},
		{1, "1"},
		{1000000, "1000000"},
		{4294967295, "4294967295"},
	}
	for _, c := range cases {
		if got := utoa(c.n); got != c.want {
			t.Errorf("utoa(%d) = %q, expected %q", c.n, got, c.want)
		}
	}
}

func TestHtoa(t *testing.T) {
	cases := []struct {
		n    uint32
		want string
	}{
		{0, "0x00000000"},
		{0x60, "0x00000060"},
		{0xDEADBEEF, "0xdeadbeef"},
		{0xFFFFFFFF, "0xffffffff"},
	}
	for _, c := range cases {
		if got := htoa(c.n); got != c.want {
			t.Errorf("htoa(%#x) = %q, expected %q", c.n, got, c.want)
		}
	}
}

func TestValueToString(t *testing.T) {
	cases := []struct {
		v    interface{}
		want string
	}{
		{"mcu", "mcu"},
		{int(12), "12"},
		{int32(-5), "-5"},
		{uint32(1000000), "1000000"},
		{uint64(16), "16"},
	}
	for _, c := range cases {
		if got := valueToString(c.v); got != c.want {
			t.Errorf("valueToString(%v) = %q, expected %q", c.v, got, c.want)
		}
	}
}
