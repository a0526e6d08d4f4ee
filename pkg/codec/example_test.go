package codec_test

import (
	"fmt"

	"github.com/ssargent/glogstore/pkg/codec"
)

func Example() {
	enc, err := codec.NewEncoder(nil)
	if err != nil {
		panic(err)
	}

	buf, err := codec.AppendHeader(nil, codec.Header{Version: codec.VersionCipher, ProtoName: "events"})
	if err != nil {
		panic(err)
	}
	for _, msg := range []string{"first", "second"} {
		buf, err = enc.AppendFrame(buf, []byte(msg), codec.CompressZlib, codec.EncryptNone)
		if err != nil {
			panic(err)
		}
	}

	h, pos, err := codec.DecodeHeader(buf)
	if err != nil {
		panic(err)
	}
	dec, err := codec.NewDecoder(h, nil)
	if err != nil {
		panic(err)
	}
	defer dec.Close()

	fmt.Println(h.ProtoName, h.Version)
	for pos < len(buf) {
		payload, n, err := dec.Decode(nil, buf[pos:])
		if err != nil {
			panic(err)
		}
		fmt.Println(string(payload))
		pos += n
	}
	// Output:
	// events v4
	// first
	// second
}
