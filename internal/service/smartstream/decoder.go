package smartstream

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	"tickwatch/internal/domain/models"
)

// Quote packet layout, little endian.
const (
	offMode          = 0
	offExchangeType  = 1
	offToken         = 2
	tokenSize        = 25
	offSequence      = offToken + tokenSize // 27
	offExchangeTime  = offSequence + 8      // 35
	offLTP           = offExchangeTime + 8  // 43
	offLastTradedQty = offLTP + 8
	offAvgPrice      = offLastTradedQty + 8
	offVolume        = offAvgPrice + 8
	offTotalBuyQty   = offVolume + 8
	offTotalSellQty  = offTotalBuyQty + 8
	offOpen          = offTotalSellQty + 8
	offHigh          = offOpen + 8
	offLow           = offHigh + 8
	offClose         = offLow + 8

	// QuotePacketSize is the length of a mode 2 packet. SnapQuote packets
	// are longer and share this prefix.
	QuotePacketSize = offClose + 8 // 123

	priceScale = 100.0
)

var (
	ErrEmptyPacket  = errors.New("smartstream: empty packet")
	ErrShortPacket  = errors.New("smartstream: packet shorter than quote layout")
	ErrInvalidToken = errors.New("smartstream: invalid token field")
)

// Decode parses one quote packet. It never panics; callers drop the packet on error.
func Decode(src []byte) (models.Tick, error) {
	if len(src) == 0 {
		return models.Tick{}, ErrEmptyPacket
	}
	if len(src) < QuotePacketSize {
		return models.Tick{}, ErrShortPacket
	}

	token, err := decodeToken(src[offToken : offToken+tokenSize])
	if err != nil {
		return models.Tick{}, err
	}

	return models.Tick{
		Mode:           src[offMode],
		ExchangeType:   src[offExchangeType],
		Token:          token,
		Sequence:       readInt64(src, offSequence),
		ExchangeTime:   time.UnixMilli(readInt64(src, offExchangeTime)).UTC(),
		LTP:            readPrice(src, offLTP),
		LastTradedQty:  readInt64(src, offLastTradedQty),
		AvgTradedPrice: readPrice(src, offAvgPrice),
		Volume:         readInt64(src, offVolume),
		TotalBuyQty:    readInt64(src, offTotalBuyQty),
		TotalSellQty:   readInt64(src, offTotalSellQty),
		Open:           readPrice(src, offOpen),
		High:           readPrice(src, offHigh),
		Low:            readPrice(src, offLow),
		Close:          readPrice(src, offClose),
	}, nil
}

// Encode writes t in the quote layout. Prices are rounded to paise.
func Encode(dst []byte, t models.Tick) ([]byte, error) {
	if len(t.Token) == 0 || len(t.Token) > tokenSize {
		return nil, ErrInvalidToken
	}
	if cap(dst) < QuotePacketSize {
		dst = make([]byte, QuotePacketSize)
	} else {
		dst = dst[:QuotePacketSize]
		clear(dst)
	}

	dst[offMode] = t.Mode
	dst[offExchangeType] = t.ExchangeType
	copy(dst[offToken:offToken+tokenSize], t.Token)
	putInt64(dst, offSequence, t.Sequence)
	putInt64(dst, offExchangeTime, t.ExchangeTime.UnixMilli())
	putPrice(dst, offLTP, t.LTP)
	putInt64(dst, offLastTradedQty, t.LastTradedQty)
	putPrice(dst, offAvgPrice, t.AvgTradedPrice)
	putInt64(dst, offVolume, t.Volume)
	putInt64(dst, offTotalBuyQty, t.TotalBuyQty)
	putInt64(dst, offTotalSellQty, t.TotalSellQty)
	putPrice(dst, offOpen, t.Open)
	putPrice(dst, offHigh, t.High)
	putPrice(dst, offLow, t.Low)
	putPrice(dst, offClose, t.Close)
	return dst, nil
}

// decodeToken accepts printable non-space ASCII followed only by NUL padding.
func decodeToken(field []byte) (string, error) {
	end := len(field)
	for i, b := range field {
		if b == 0 {
			end = i
			break
		}
		if b <= 0x20 || b >= 0x7f {
			return "", ErrInvalidToken
		}
	}
	if end == 0 {
		return "", ErrInvalidToken
	}
	for _, b := range field[end:] {
		if b != 0 {
			return "", ErrInvalidToken
		}
	}
	return string(field[:end]), nil
}

func readInt64(src []byte, off int) int64 {
	return int64(binary.LittleEndian.Uint64(src[off : off+8]))
}

func readPrice(src []byte, off int) float64 {
	return float64(readInt64(src, off)) / priceScale
}

func putInt64(dst []byte, off int, v int64) {
	binary.LittleEndian.PutUint64(dst[off:off+8], uint64(v))
}

func putPrice(dst []byte, off int, v float64) {
	putInt64(dst, off, int64(math.Round(v*priceScale)))
}
