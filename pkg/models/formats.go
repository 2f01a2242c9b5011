package models

import "strings"

// ItemType classifies what an item is, independent of its format.
type ItemType string

const (
	TypeDoc       ItemType = "doc"
	TypeResource  ItemType = "resource"
	TypeConcept   ItemType = "concept"
	TypeChat      ItemType = "chat"
	TypeConfig    ItemType = "config"
	TypeExport    ItemType = "export"
	TypeExtension ItemType = "extension"
)

// ItemTypes lists every item type in display order.
var ItemTypes = []ItemType{
	TypeDoc, TypeResource, TypeConcept, TypeChat, TypeConfig, TypeExport, TypeExtension,
}

// Folder is the workspace subdirectory holding items of this type.
func (t ItemType) Folder() string {
	return string(t) + "s"
}

// ParseItemType returns the item type named s.
func ParseItemType(s string) (ItemType, bool) {
	for _, t := range ItemTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Format describes how an item's body is encoded.
type Format string

const (
	FormatMarkdown  Format = "markdown"
	FormatMdHTML    Format = "md_html"
	FormatHTML      Format = "html"
	FormatPlaintext Format = "plaintext"
	FormatYAML      Format = "yaml"
	FormatURL       Format = "url"
	FormatPDF       Format = "pdf"
	FormatMP3       Format = "mp3"
	FormatM4A       Format = "m4a"
	FormatMP4       Format = "mp4"
	FormatBinary    Format = "binary"
)

var formatExts = map[Format]string{
	FormatMarkdown:  "md",
	FormatMdHTML:    "md",
	FormatHTML:      "html",
	FormatPlaintext: "txt",
	FormatYAML:      "yml",
	FormatURL:       "yml",
	FormatPDF:       "pdf",
	FormatMP3:       "mp3",
	FormatM4A:       "m4a",
	FormatMP4:       "mp4",
	FormatBinary:    "bin",
}

// Ext is the file extension used for this format, without a dot.
func (f Format) Ext() string {
	if ext, ok := formatExts[f]; ok {
		return ext
	}
	return "bin"
}

// IsText reports whether the format is stored with an inline metadata header.
func (f Format) IsText() bool {
	switch f {
	case FormatMarkdown, FormatMdHTML, FormatHTML, FormatPlaintext, FormatYAML, FormatURL:
		return true
	}
	return false
}

// IsAudio reports whether the format is an audio container.
func (f Format) IsAudio() bool {
	return f == FormatMP3 || f == FormatM4A
}

// IsVideo reports whether the format is a video container.
func (f Format) IsVideo() bool {
	return f == FormatMP4
}

// FormatForExt guesses a format from a file extension.
func FormatForExt(ext string) (Format, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "md", "markdown":
		return FormatMarkdown, true
	case "html", "htm":
		return FormatHTML, true
	case "txt", "text":
		return FormatPlaintext, true
	case "yml", "yaml":
		return FormatYAML, true
	case "pdf":
		return FormatPDF, true
	case "mp3":
		return FormatMP3, true
	case "m4a":
		return FormatM4A, true
	case "mp4":
		return FormatMP4, true
	case "bin":
		return FormatBinary, true
	}
	return "", false
}

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, bool) {
	f := Format(s)
	if _, ok := formatExts[f]; ok {
		return f, true
	}
	return "", false
}
