package docker

import "testing"

func TestExecPrefix(t *testing.T) {
	c := FromName("alpha-container")
	got := c.ExecPrefix()
	want := []string{"docker", "exec", "-it", "alpha-container"}
	if len(got) != len(want) {
		t.Fatalf("ExecPrefix() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExecPrefix() = %v, want %v", got, want)
		}
	}
}

func TestSplitRunOptions(t *testing.T) {
	got := splitRunOptions("--cpus 2 --memory 512m")
	want := []string{"--cpus", "2", "--memory", "512m"}
	if len(got) != len(want) {
		t.Fatalf("splitRunOptions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("splitRunOptions() = %v, want %v", got, want)
		}
	}
}

func TestNewContainerDefaultsImage(t *testing.T) {
	c := NewContainer("alpha-container", "")
	if c.image == "" {
		t.Error("expected a default image when none is specified")
	}
}
