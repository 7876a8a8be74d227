package main

import (
	"io/fs"
	"log"
	"path/filepath"

	"github.com/anacrolix/tagflag"
	"github.com/dustin/go-humanize"

	"github.com/anacrolix/filespan"
	"github.com/anacrolix/filespan/storage"
)

func scanLayout(dir string, pieceLength int64) (*filespan.Layout, int64, error) {
	var files []filespan.FileEntry
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filespan.FileEntry{
			Path:   filepath.ToSlash(rel),
			Length: info.Size(),
		})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	l, err := filespan.New(files, pieceLength)
	return l, total, err
}

func main() {
	log.SetFlags(log.Flags() | log.Lshortfile)
	args := struct {
		NoReplace   bool  `help:"leave existing destination files in place"`
		FailIfExist bool  `help:"abort if any destination file already exists"`
		PieceLength int64 `help:"piece length to assume for the layout"`
		tagflag.StartPos
		Src  string
		Dest string
	}{
		PieceLength: 256 << 10,
	}
	tagflag.Parse(&args, tagflag.Description(
		"Moves the file tree rooted at SRC to DEST, copying across volumes and rolling back on failure."))

	mode := storage.AlwaysReplace
	switch {
	case args.NoReplace && args.FailIfExist:
		log.Fatal("-noReplace and -failIfExist are mutually exclusive")
	case args.NoReplace:
		mode = storage.DontReplace
	case args.FailIfExist:
		mode = storage.FailIfExist
	}

	l, total, err := scanLayout(args.Src, args.PieceLength)
	if err != nil {
		log.Fatalf("scanning %v: %v", args.Src, err)
	}
	log.Printf("moving %v files (%v) from %v to %v",
		l.NumFiles(), humanize.Bytes(uint64(total)), args.Src, args.Dest)

	status, newPath, err := storage.MoveStorage(storage.MoveOpts{
		Layout:   l,
		SavePath: args.Src,
		DestPath: args.Dest,
		Mode:     mode,
	})
	if err != nil {
		log.Fatalf("move failed (%v), files remain at %v: %v", status, newPath, err)
	}
	switch status {
	case storage.StatusNeedFullCheck:
		log.Printf("moved to %v, but some destination files were left in place and should be re-verified", newPath)
	default:
		log.Printf("moved to %v", newPath)
	}
}
