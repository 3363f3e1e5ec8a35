// Package export encodes decoded frames as JPEG, PNG or HEIF stills and
// optionally embeds camera, EXIF and GPS tags.
//
// Tags are assembled with go-exif into IFD0 plus Exif and GPS sub-IFDs.
// JPEG output carries them in an APP1 "Exif" segment and PNG output in an
// eXIf chunk, both written through the dsoprea image structure parsers.
// HEIF output is re-encoded by libvips from the tagged JPEG, which carries
// the EXIF block over.
//
// ReadEmbedded reads the tags of an exported still back using imagemeta.
package export
