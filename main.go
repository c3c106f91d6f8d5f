package main

import (
	"log"
	"time"

	"github.com/anoixa/image-gallery/config"

	"github.com/anoixa/image-gallery/cmd"
)

func init() {
	var cstZone = time.FixedZone("CST", 8*3600) // 东八
	time.Local = cstZone
}

func main() {
	log.Printf("image gallery %s (%s)", config.Version, config.CommitHash)
	cmd.Execute()
}
