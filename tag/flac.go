package tag

import (
	"fmt"

	"github.com/WindustH/ncmpp/ncm"
	"github.com/go-flac/flacpicture"
	"github.com/go-flac/flacvorbis"
	flac "github.com/go-flac/go-flac"
)

func addFLACPicture(f *flac.File, cover []byte) error {
	picture, err := flacpicture.NewFromImageData(flacpicture.PictureTypeFrontCover, "Front cover", cover, pictureMIME(cover))
	if err != nil {
		return fmt.Errorf("failed building flac picture block: %w", err)
	}

	pictureMeta := picture.Marshal()
	f.Meta = append(f.Meta, &pictureMeta)
	return nil
}

func addFLACComments(f *flac.File, meta *ncm.Metadata) error {
	var cmtMeta *flac.MetaDataBlock
	for _, m := range f.Meta {
		if m.Type == flac.VorbisComment {
			cmtMeta = m
			break
		}
	}

	var cmts *flacvorbis.MetaDataBlockVorbisComment
	if cmtMeta != nil {
		var err error
		if cmts, err = flacvorbis.ParseFromMetaDataBlock(*cmtMeta); err != nil {
			return fmt.Errorf("failed parsing vorbis comment block: %w", err)
		}
	} else {
		cmts = flacvorbis.New()
	}

	setIfMissing := func(field, value string) error {
		if value == "" {
			return nil
		}
		existing, err := cmts.Get(field)
		if err != nil {
			return fmt.Errorf("failed reading vorbis field %s: %w", field, err)
		}
		if len(existing) == 0 {
			cmts.Add(field, value)
		}
		return nil
	}

	if err := setIfMissing(flacvorbis.FIELD_TITLE, meta.MusicName); err != nil {
		return err
	}
	if err := setIfMissing(flacvorbis.FIELD_ALBUM, meta.Album); err != nil {
		return err
	}

	if existing, err := cmts.Get(flacvorbis.FIELD_ARTIST); err != nil {
		return fmt.Errorf("failed reading vorbis field %s: %w", flacvorbis.FIELD_ARTIST, err)
	} else if len(existing) == 0 {
		for _, name := range meta.ArtistNames() {
			cmts.Add(flacvorbis.FIELD_ARTIST, name)
		}
	}

	res := cmts.Marshal()
	if cmtMeta != nil {
		*cmtMeta = res
	} else {
		f.Meta = append(f.Meta, &res)
	}
	return nil
}
