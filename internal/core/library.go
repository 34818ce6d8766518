package core

import (
	"fmt"
	"path"
	"strings"
)

// DefaultLibraryRepository serves libraries that carry no explicit URL.
const DefaultLibraryRepository = "https://libraries.minecraft.net/"

// Coordinate is a parsed maven name: group:artifact:version[:classifier][@ext].
type Coordinate struct {
	Group      string
	Artifact   string
	Version    string
	Classifier string
	Extension  string
}

// ParseCoordinate parses a library name.
func ParseCoordinate(name string) (Coordinate, error) {
	ext := "jar"
	if at := strings.LastIndex(name, "@"); at >= 0 {
		ext = name[at+1:]
		name = name[:at]
	}

	parts := strings.Split(name, ":")
	if len(parts) < 3 || len(parts) > 4 {
		return Coordinate{}, fmt.Errorf("invalid maven coordinate %q", name)
	}
	for _, p := range parts {
		if p == "" {
			return Coordinate{}, fmt.Errorf("invalid maven coordinate %q", name)
		}
	}

	c := Coordinate{
		Group:     parts[0],
		Artifact:  parts[1],
		Version:   parts[2],
		Extension: ext,
	}
	if len(parts) == 4 {
		c.Classifier = parts[3]
	}
	return c, nil
}

// WithClassifier returns a copy of c using classifier.
func (c Coordinate) WithClassifier(classifier string) Coordinate {
	c.Classifier = classifier
	return c
}

// Filename is artifact-version[-classifier].ext.
func (c Coordinate) Filename() string {
	name := c.Artifact + "-" + c.Version
	if c.Classifier != "" {
		name += "-" + c.Classifier
	}
	return name + "." + c.Extension
}

// Path is the slash-separated maven layout path relative to a repository root.
func (c Coordinate) Path() string {
	return path.Join(strings.ReplaceAll(c.Group, ".", "/"), c.Artifact, c.Version, c.Filename())
}

func (c Coordinate) String() string {
	s := c.Group + ":" + c.Artifact + ":" + c.Version
	if c.Classifier != "" {
		s += ":" + c.Classifier
	}
	if c.Extension != "jar" {
		s += "@" + c.Extension
	}
	return s
}

// NativeClassifier returns the classifier naming this library's native
// archive for ctx, or "" when there is none.
func (l *Library) NativeClassifier(ctx PlatformContext) string {
	classifier, ok := l.Natives[ctx.OS]
	if !ok {
		return ""
	}
	bits := "32"
	if ctx.Is64Bit() {
		bits = "64"
	}
	return strings.ReplaceAll(classifier, "${arch}", bits)
}

// RepositoryURL returns the maven base the library is fetched from.
func (l *Library) RepositoryURL() string {
	if l.URL == "" {
		return DefaultLibraryRepository
	}
	if !strings.HasSuffix(l.URL, "/") {
		return l.URL + "/"
	}
	return l.URL
}
