package linenum

import "testing"

const workflow = `name: CI
on: push

jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - name: Test
        run: |
          make test

  "deploy":
    needs: build
    uses: ./.github/workflows/deploy.yml
`

func TestBuild(t *testing.T) {
	x, err := Build([]byte(workflow))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name string
		got  int
		want int
	}{
		{"build job", x.Job("build"), 5},
		{"deploy job", x.Job("deploy"), 13},
		{"first step", x.Step("build", 0), 8},
		{"second step", x.Step("build", 1), 9},
		{"missing step", x.Step("build", 2), 0},
		{"negative step", x.Step("build", -1), 0},
		{"reusable job has no steps", x.Step("deploy", 0), 0},
		{"unknown job", x.Job("lint"), 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got line %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestBuildDegenerateInput(t *testing.T) {
	if _, err := Build([]byte("jobs: [\n")); err == nil {
		t.Error("expected an error for invalid YAML")
	}

	x, err := Build([]byte("- just\n- a list\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if x.Job("just") != 0 {
		t.Error("expected an empty index")
	}

	var nilIndex *Index
	if nilIndex.Job("build") != 0 || nilIndex.Step("build", 0) != 0 {
		t.Error("nil index should report unknown lines")
	}
}
