package dto

type GalleryResponse struct {
	Source   string   `json:"source"`
	Count    int      `json:"count"`
	LoadedAt string   `json:"loaded_at"`
	Names    []string `json:"names"`
}
