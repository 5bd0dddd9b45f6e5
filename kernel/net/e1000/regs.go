package e1000

// Register offsets, from the Intel 8254x family (Pro/1000) software
// developer's manual. Values are byte offsets into the BAR0 MMIO window.
const (
	regCTRL  = 0x0000
	regSTATUS = 0x0008
	regEERD  = 0x0014
	regICR   = 0x00C0
	regITR   = 0x00C4
	regICS   = 0x00C8
	regIMS   = 0x00D0
	regIMC   = 0x00D8
	regRCTL  = 0x0100
	regTCTL  = 0x0400

	regRDBAL = 0x2800
	regRDBAH = 0x2804
	regRDLEN = 0x2808
	regRDH   = 0x2810
	regRDT   = 0x2818

	regTDBAL = 0x3800
	regTDBAH = 0x3804
	regTDLEN = 0x3808
	regTDH   = 0x3810
	regTDT   = 0x3818

	regMTA  = 0x5200
	regRAL0 = 0x5400
	regRAH0 = 0x5404

	regMDIC = 0x0020
)

const (
	ctrlReset = 1 << 26
	ctrlSLU   = 1 << 6 // set-link-up

	eerdStart uint32 = 1 << 0
	eerdDone  uint32 = 1 << 4 // newer chips (82540+)
	eerdDone82544 uint32 = 1 << 1

	raValid = 1 << 31

	rctlEN      = 1 << 1
	rctlBAM     = 1 << 15
	rctlBSIZE8192 = 0x2 << 16 // with BSEX set
	rctlBSEX    = 1 << 25
	rctlRDMTSHalf = 0 << 8

	tctlEN   = 1 << 1
	tctlPSP  = 1 << 3
	tctlRTLC = 1 << 24
	tctlCT   = 15 << 4
	tctlCOLD = 64 << 12

	icrRXT0   = 1 << 7
	icrRXDMT0 = 1 << 4

	mdicOpRead  = 2 << 26
	mdicOpWrite = 1 << 26
	mdicReady   = 1 << 28
	mdicError   = 1 << 30

	txDescEOP  = 1 << 0
	txDescIFCS = 1 << 1
	txDescRS   = 1 << 3
	txDescDD   = 1 << 0 // in status byte

	rxDescDD = 1 << 0
)

const (
	rxRingSize = 32
	txRingSize = 8
	bufferSize = 8192
)
