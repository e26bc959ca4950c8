package world

import (
	"errors"
	"fmt"
	"io/fs"

	"buildinggame.io/internal/persistence/worldfile"
)

// ExportLevel copies the grid and spawn into a level value.
func (w *World) ExportLevel() worldfile.Level {
	lvl := worldfile.NewLevel()
	lvl.SpawnX, lvl.SpawnY = w.SpawnPos.X, w.SpawnPos.Y
	for x := range Side {
		for y := range Side {
			t := w.GetTile(x, y)
			lvl.Tiles[worldfile.Index(x, y)] = worldfile.Record{
				Type:     t.Type,
				Rotation: t.Flags.Rotation,
				Flip:     t.Flags.Flip,
			}
		}
	}
	return lvl
}

// ImportLevel overwrites every cell and the spawn position from lvl.
func (w *World) ImportLevel(lvl worldfile.Level) error {
	if len(lvl.Tiles) != Side*Side {
		return fmt.Errorf("world: level has %d tiles, want %d", len(lvl.Tiles), Side*Side)
	}
	w.SpawnPos = Vec2f{X: lvl.SpawnX, Y: lvl.SpawnY}
	for x := range Side {
		for y := range Side {
			r := lvl.Tiles[worldfile.Index(x, y)]
			if lvl.Format == worldfile.FormatLegacy {
				// legacy levels carry one raw byte per cell
				w.PlaceTile(x, y, FromByte(r.Type))
				continue
			}
			w.PlaceTile(x, y, TileInfo{Type: r.Type, Flags: TileFlags{Rotation: r.Rotation, Flip: r.Flip}})
		}
	}
	return nil
}

// Save writes the world to WorldFile.
func (w *World) Save() error { return w.SaveTo(w.WorldFile) }

// SaveTo writes the world to path. The in-memory world is not modified and a
// failed save leaves any existing file at path untouched.
func (w *World) SaveTo(path string) error {
	entry := PersistEntry{
		Op:       OpSave,
		Path:     path,
		Format:   worldfile.HeaderCurrent,
		SpawnX:   w.SpawnPos.X,
		SpawnY:   w.SpawnPos.Y,
		NonEmpty: w.NonEmpty(),
	}
	err := worldfile.WriteFile(path, w.ExportLevel())
	if err != nil {
		w.logger.Printf("world: save %s: %v", path, err)
		entry.Err = err.Error()
	} else {
		entry.Digest = w.Digest()
	}
	w.emitPersist(entry)
	return err
}

// Load replaces the world with the level at path and remembers path as
// WorldFile. The grid and spawn are reset before reading, and a level is only
// imported once fully decoded, so a failed load leaves an empty world.
//
// A legacy "LVL" file is first copied to path+".old".
func (w *World) Load(path string) error {
	if path == "" {
		path = DefaultWorldFile
	}
	w.WorldFile = path
	w.Flush()
	w.SpawnPos = Vec2f{}

	entry := PersistEntry{Op: OpLoad, Path: path}
	lvl, err := w.readLevel(path)
	if err == nil {
		err = w.ImportLevel(lvl)
		if err != nil {
			w.Flush()
			w.SpawnPos = Vec2f{}
		}
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			w.logger.Printf("world: %s not found, starting empty", path)
		} else {
			w.logger.Printf("world: bad world file %s: %v", path, err)
		}
		entry.Err = err.Error()
		w.emitPersist(entry)
		return err
	}

	entry.Format = lvl.Format.String()
	entry.Digest = w.Digest()
	entry.SpawnX, entry.SpawnY = w.SpawnPos.X, w.SpawnPos.Y
	entry.NonEmpty = w.NonEmpty()
	w.emitPersist(entry)
	return nil
}

func (w *World) readLevel(path string) (worldfile.Level, error) {
	f, err := worldfile.Open(path)
	if err != nil {
		return worldfile.Level{}, err
	}
	defer f.Close()

	if f.Format() != worldfile.FormatLegacy {
		return f.Decode()
	}

	w.logger.Printf("world: %s uses the old format, reading it as such", path)
	w.logger.Printf("world: creating backup")
	backup, err := worldfile.Backup(path)
	if err != nil {
		return worldfile.Level{}, err
	}
	w.emitPersist(PersistEntry{Op: OpMigrate, Path: backup, Format: worldfile.HeaderLegacy})

	w.logger.Printf("world: reading legacy world")
	lvl, err := f.Decode()
	if err != nil {
		return worldfile.Level{}, err
	}
	w.logger.Printf("world: legacy world read, backup at %s", backup)
	return lvl, nil
}
