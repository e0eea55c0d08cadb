package utils

import "io"

type ReaderAndByteReader interface {
	io.Reader
	io.ByteReader
}
