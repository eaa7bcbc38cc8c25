// qrisdecode prints the fields of a QRIS payload and can render it as a PNG.
//
//	qrisdecode [-png dir] <payload>
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go-qris/payment/qrcode"
	"go-qris/payment/qris"
)

func main() {
	pngDir := flag.String("png", "", "write the payload as a QR image into this directory")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-png dir] <payload>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	payload := flag.Arg(0)

	decoded := qris.Decode(payload)
	out := struct {
		qris.Decoded
		WholeAmount *int64 `json:"whole_amount,omitempty"`
		Image       string `json:"image,omitempty"`
	}{Decoded: decoded}
	if amount, ok := decoded.WholeAmount(); ok {
		out.WholeAmount = &amount
	}

	if *pngDir != "" {
		name, err := qrcode.NewStorage(*pngDir).WritePayload(payload)
		if err != nil {
			fmt.Fprintln(os.Stderr, "render:", err)
			os.Exit(1)
		}
		out.Image = name
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
