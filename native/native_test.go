package native

import (
	"archive/tar"
	"io"
	"strings"
	"testing"

	"github.com/trailofbits/it-depends/dependencies"
	"github.com/trailofbits/it-depends/resolver"
)

func TestBuildContextProducesDockerfileAndScripts(t *testing.T) {
	setup := &resolver.DockerSetup{
		AptGetPackages:       []string{"python3", "python3-pip"},
		InstallPackageScript: "#!/usr/bin/env bash\npip3 install $1==$2\n",
		LoadPackageScript:    "#!/usr/bin/env bash\npython3 -c \"import $1\"\n",
		BaselineScript:       "#!/usr/bin/env python3 -c \"\"\n",
		PostInstall:          "RUN echo hello",
	}

	buf, err := buildContext(setup)
	if err != nil {
		t.Fatalf("buildContext error: %v", err)
	}

	tr := tar.NewReader(buf)
	found := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		contents, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading tar entry %s: %v", hdr.Name, err)
		}
		found[hdr.Name] = string(contents)
	}

	for _, name := range []string{"Dockerfile", "install.sh", "run.sh", "baseline.sh"} {
		if _, ok := found[name]; !ok {
			t.Errorf("expected %s in build context, got entries: %v", name, found)
		}
	}
	if !strings.Contains(found["Dockerfile"], "python3 python3-pip") {
		t.Errorf("expected apt-get packages in Dockerfile, got: %s", found["Dockerfile"])
	}
	if !strings.Contains(found["Dockerfile"], "RUN echo hello") {
		t.Errorf("expected PostInstall in Dockerfile, got: %s", found["Dockerfile"])
	}
	if found["install.sh"] != setup.InstallPackageScript {
		t.Errorf("install.sh mismatch: %s", found["install.sh"])
	}
}

func TestStraceLibraryPatternMatchesOpenAndOpenat(t *testing.T) {
	cases := []struct {
		line     string
		wantPath string
		wantOK   bool
	}{
		{`openat(AT_FDCWD, "/lib/x86_64-linux-gnu/libc.so.6", O_RDONLY) = 3`, "/lib/x86_64-linux-gnu/libc.so.6", true},
		{`open("/usr/lib/libssl.so.1.1", O_RDONLY) = 4`, "/usr/lib/libssl.so.1.1", true},
		{`read(3, "\0\1\2", 4096) = 4096`, "", false},
	}
	for _, c := range cases {
		m := straceLibraryPattern.FindStringSubmatch(c.line)
		if c.wantOK && m == nil {
			t.Errorf("expected a match for %q", c.line)
			continue
		}
		if !c.wantOK {
			if m != nil {
				t.Errorf("expected no match for %q, got %v", c.line, m)
			}
			continue
		}
		if m[2] != c.wantPath {
			t.Errorf("FindStringSubmatch(%q) path = %q, want %q", c.line, m[2], c.wantPath)
		}
	}
}

func TestInBaselineExcludesKnownDependencies(t *testing.T) {
	baseline := []dependencies.Dependency{
		dependencies.NewDependency("ubuntu", "/lib/x86_64-linux-gnu/libc.so.6", dependencies.SimpleSpec{}),
	}
	inBase := dependencies.NewDependency("ubuntu", "/lib/x86_64-linux-gnu/libc.so.6", dependencies.SimpleSpec{})
	notInBase := dependencies.NewDependency("ubuntu", "/usr/lib/libssl.so.1.1", dependencies.SimpleSpec{})

	if !inBaseline(inBase, baseline) {
		t.Errorf("expected %v to be recognized as baseline noise", inBase)
	}
	if inBaseline(notInBase, baseline) {
		t.Errorf("expected %v to not be recognized as baseline noise", notInBase)
	}
}
