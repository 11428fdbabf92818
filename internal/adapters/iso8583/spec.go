// Package iso8583 is the direct-integration processor adapter speaking ISO 8583 over TCP.
package iso8583

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/prefix"
)

// Message type indicators
const (
	mtiAuthorization         = "0100"
	mtiAuthorizationResponse = "0110"
	mtiFinancial             = "0200"
	mtiFinancialResponse     = "0210"
	mtiCompletionAdvice      = "0220"
	mtiCompletionResponse    = "0230"
	mtiReversal              = "0400"
	mtiReversalResponse      = "0410"
)

// Field numbers used by the adapter
const (
	fieldProcessingCode   = 3
	fieldAmount           = 4
	fieldTransmissionTime = 7
	fieldSTAN             = 11
	fieldLocalTime        = 12
	fieldPOSEntryMode     = 22
	fieldRRN              = 37
	fieldApprovalCode     = 38
	fieldResponseCode     = 39
	fieldTerminalID       = 41
	fieldMerchantID       = 42
	fieldCardReference    = 48
	fieldCurrency         = 49
	fieldOriginalData     = 90
)

// approvedResponseCode is field 39 for an approval
const approvedResponseCode = "00"

// Spec is the message layout agreed with direct processors: ASCII fields,
// hex bitmap, two-byte big-endian length header on the wire.
var Spec = &iso8583.MessageSpec{
	Name: "Transaction orchestrator direct ISO 8583",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		fieldProcessingCode: field.NewString(&field.Spec{
			Length:      6,
			Description: "Processing Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldAmount: field.NewString(&field.Spec{
			Length:      12,
			Description: "Transaction Amount",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldTransmissionTime: field.NewString(&field.Spec{
			Length:      10,
			Description: "Transmission Date & Time",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldSTAN: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number (STAN)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldLocalTime: field.NewString(&field.Spec{
			Length:      6,
			Description: "Local Transaction Time",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldPOSEntryMode: field.NewString(&field.Spec{
			Length:      3,
			Description: "Point of Service Entry Mode",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldRRN: field.NewString(&field.Spec{
			Length:      12,
			Description: "Retrieval Reference Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldApprovalCode: field.NewString(&field.Spec{
			Length:      6,
			Description: "Authorization Identification Response",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldResponseCode: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldTerminalID: field.NewString(&field.Spec{
			Length:      8,
			Description: "Card Acceptor Terminal Identification",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldMerchantID: field.NewString(&field.Spec{
			Length:      15,
			Description: "Card Acceptor Identification Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldCardReference: field.NewString(&field.Spec{
			Length:      999,
			Description: "Additional Data - Private (card reference)",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		fieldCurrency: field.NewString(&field.Spec{
			Length:      3,
			Description: "Currency Code, Transaction",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldOriginalData: field.NewString(&field.Spec{
			Length:      42,
			Description: "Original Data Elements",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
	},
}

// ReadMessageLength reads the two-byte length header
func ReadMessageLength(r io.Reader) (int, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("read length header: %w", err)
	}
	return int(binary.BigEndian.Uint16(header)), nil
}

// WriteMessageLength writes the two-byte length header
func WriteMessageLength(w io.Writer, length int) (int, error) {
	if length > 0xFFFF {
		return 0, fmt.Errorf("message length %d exceeds header capacity", length)
	}
	header := make([]byte, 2)
	binary.BigEndian.PutUint16(header, uint16(length))
	return w.Write(header)
}
