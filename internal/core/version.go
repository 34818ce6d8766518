// Package core version handling.
// Describes Mojang-style version catalogs and version documents.
package core

import "time"

// VersionType represents the type of Minecraft version
type VersionType string

const (
	VersionTypeRelease  VersionType = "release"
	VersionTypeSnapshot VersionType = "snapshot"
	VersionTypeOldBeta  VersionType = "old_beta"
	VersionTypeOldAlpha VersionType = "old_alpha"
)

// Version represents a Minecraft version from the manifest
type Version struct {
	ID          string      `json:"id"`
	Type        VersionType `json:"type"`
	URL         string      `json:"url"`
	ReleaseTime time.Time   `json:"releaseTime"`
	SHA1        string      `json:"sha1"`
}

// VersionManifest is the root of Mojang's version manifest
type VersionManifest struct {
	Latest   LatestVersions `json:"latest"`
	Versions []Version      `json:"versions"`
}

// LatestVersions contains the latest release and snapshot
type LatestVersions struct {
	Release  string `json:"release"`
	Snapshot string `json:"snapshot"`
}

// Find returns the catalog entry with the given id.
func (m *VersionManifest) Find(id string) (*Version, bool) {
	for i := range m.Versions {
		if m.Versions[i].ID == id {
			return &m.Versions[i], true
		}
	}
	return nil, false
}

// VersionDetails contains full version metadata (from version JSON).
// Loader profiles only fill in what they change and name the rest
// through InheritsFrom.
type VersionDetails struct {
	ID                 string          `json:"id"`
	InheritsFrom       string          `json:"inheritsFrom,omitempty"`
	Type               VersionType     `json:"type,omitempty"`
	MainClass          string          `json:"mainClass,omitempty"`
	MinecraftArguments string          `json:"minecraftArguments,omitempty"`
	Arguments          *Arguments      `json:"arguments,omitempty"`
	Libraries          []Library       `json:"libraries,omitempty"`
	AssetIndex         *AssetIndexRef  `json:"assetIndex,omitempty"`
	Assets             string          `json:"assets,omitempty"`
	Downloads          *Downloads      `json:"downloads,omitempty"`
	JavaVersion        *JavaVersionReq `json:"javaVersion,omitempty"`
	Logging            *Logging        `json:"logging,omitempty"`
	Jar                string          `json:"jar,omitempty"`
	ReleaseTime        time.Time       `json:"releaseTime,omitempty"`
	Time               time.Time       `json:"time,omitempty"`
}

// Arguments contains game and JVM arguments (modern format)
type Arguments struct {
	Game []Argument `json:"game,omitempty"`
	JVM  []Argument `json:"jvm,omitempty"`
}

// Library represents a dependency library
type Library struct {
	Name      string            `json:"name"`
	URL       string            `json:"url,omitempty"` // Maven repository base for loader libraries
	Downloads *LibraryDownloads `json:"downloads,omitempty"`
	Rules     []Rule            `json:"rules,omitempty"`
	Natives   map[string]string `json:"natives,omitempty"`
	Extract   *ExtractRules     `json:"extract,omitempty"`
}

// LibraryDownloads contains artifact download info
type LibraryDownloads struct {
	Artifact    *Artifact            `json:"artifact,omitempty"`
	Classifiers map[string]*Artifact `json:"classifiers,omitempty"`
}

// ExtractRules lists archive entries skipped when unpacking natives.
type ExtractRules struct {
	Exclude []string `json:"exclude,omitempty"`
}

// Artifact represents a downloadable file
type Artifact struct {
	Path string `json:"path,omitempty"`
	SHA1 string `json:"sha1,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url"`
}

// AssetIndexRef references the asset index
type AssetIndexRef struct {
	ID        string `json:"id"`
	SHA1      string `json:"sha1"`
	Size      int64  `json:"size"`
	TotalSize int64  `json:"totalSize"`
	URL       string `json:"url"`
}

// Downloads contains client/server download info
type Downloads struct {
	Client         *Artifact `json:"client,omitempty"`
	ClientMappings *Artifact `json:"client_mappings,omitempty"`
	Server         *Artifact `json:"server,omitempty"`
	ServerMappings *Artifact `json:"server_mappings,omitempty"`
}

// JavaVersionReq specifies required Java version
type JavaVersionReq struct {
	Component    string `json:"component"`
	MajorVersion int    `json:"majorVersion"`
}

// Logging holds the log configuration handed to the game.
type Logging struct {
	Client *LoggingConfig `json:"client,omitempty"`
}

// LoggingConfig describes a log4j configuration file and the JVM
// argument that points at it.
type LoggingConfig struct {
	Argument string      `json:"argument"`
	File     LoggingFile `json:"file"`
	Type     string      `json:"type"`
}

// LoggingFile is the downloadable log configuration.
type LoggingFile struct {
	ID   string `json:"id"`
	SHA1 string `json:"sha1"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}
