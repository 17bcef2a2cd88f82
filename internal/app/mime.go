package app

import (
	"log"
	"mime"
)

func init() {
	ensureMimeType(".webp", "image/webp")
	ensureMimeType(".doc", "application/msword")
	ensureMimeType(".docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document")
	ensureMimeType(".xls", "application/vnd.ms-excel")
	ensureMimeType(".xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
}

func ensureMimeType(ext, typ string) {
	if mime.TypeByExtension(ext) != "" {
		return
	}
	if err := mime.AddExtensionType(ext, typ); err != nil {
		log.Printf("app: failed to register MIME type for %s: %v", ext, err)
	}
}
