package models

import "time"

// Screenshot describes one stored image
type Screenshot struct {
	Name     string    `json:"name"`
	Folder   string    `json:"folder"`
	Path     string    `json:"path"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
	Size     int64     `json:"size"`
}

// Folder describes a real or virtual screenshot folder
type Folder struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Path        string       `json:"path"`
	Created     time.Time    `json:"created"`
	Modified    time.Time    `json:"modified"`
	IsPermanent bool         `json:"is_permanent"`
	IsStarred   bool         `json:"is_starred"`
	Screenshots []Screenshot `json:"screenshots"`
}

// StoredFile is the result of an upload
type StoredFile struct {
	Path     string `json:"path"`
	Folder   string `json:"folder"`
	Filename string `json:"filename"`
}
