package scanner

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

type Decoder interface {
	// Decode はフレームからQRの文字列を取り出す。見つからなければ ErrNoCode を包んで返す
	Decode(frame image.Image) (string, error)
}

// ZXingDecoder: フレームをオフスクリーンのラスタに描き直してから gozxing で読む。
// ラスタはフレーム間で使い回すので、1つのスキャンループ専用。
type ZXingDecoder struct {
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
	raster *image.RGBA
}

func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		reader: qrcode.NewQRCodeReader(),
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

func (d *ZXingDecoder) Decode(frame image.Image) (string, error) {
	b := frame.Bounds()
	if b.Empty() {
		return "", ErrNoCode
	}
	if int64(b.Dx())*int64(b.Dy()) > MaxFramePixels {
		return "", fmt.Errorf("%w: %dx%d", ErrFrameTooLarge, b.Dx(), b.Dy())
	}
	// フレームのサイズが変わった時だけラスタを作り直す
	if d.raster == nil || d.raster.Bounds().Dx() != b.Dx() || d.raster.Bounds().Dy() != b.Dy() {
		d.raster = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(d.raster, d.raster.Bounds(), frame, b.Min, draw.Src)

	bmp, err := gozxing.NewBinaryBitmapFromImage(d.raster)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	res, err := d.reader.Decode(bmp, d.hints)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return res.GetText(), nil
}
