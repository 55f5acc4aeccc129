package types

// Artifact is a loadable library found in the artifact directory.
type Artifact struct {
	// Library name without platform prefix and suffix.
	// example: game
	Name string `json:"name" example:"game"`
	// Absolute path to the file.
	// example: /srv/game/libgame.so
	Path string `json:"path" example:"/srv/game/libgame.so"`
	// File size in bytes.
	// example: 16384
	SizeBytes int64 `json:"size_bytes" example:"16384"`
	// Modification time (unix seconds).
	// example: 1700000000
	ModTimeUnix int64 `json:"mod_time_unix" example:"1700000000"`
}

// ArtifactsResponse wraps GET /artifacts.
type ArtifactsResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}
