// Package escpos builds raw ESC/POS byte jobs for thermal receipt
// printers. Only the small command set the printer transports need is
// covered: initialise, plain text, raster images and the partial cut.
package escpos
