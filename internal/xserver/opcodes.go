package xserver

// Core request opcodes.
const (
	opCreateWindow           = 1
	opChangeWindowAttributes = 2
	opGetWindowAttributes    = 3
	opDestroyWindow          = 4
	opReparentWindow         = 7
	opMapWindow              = 8
	opMapSubwindows          = 9
	opUnmapWindow            = 10
	opConfigureWindow        = 12
	opGetGeometry            = 14
	opQueryTree              = 15
	opInternAtom             = 16
	opGetAtomName            = 17
	opChangeProperty         = 18
	opDeleteProperty         = 19
	opGetProperty            = 20
	opSetSelectionOwner      = 22
	opGetSelectionOwner      = 23
	opSendEvent              = 25
	opGrabPointer            = 26
	opUngrabPointer          = 27
	opGrabServer             = 36
	opUngrabServer           = 37
	opQueryPointer           = 38
	opTranslateCoordinates   = 40
	opWarpPointer            = 41
	opSetInputFocus          = 42
	opGetInputFocus          = 43
	opOpenFont               = 45
	opListFonts              = 49
	opCreatePixmap           = 53
	opFreePixmap             = 54
	opCreateGC               = 55
	opChangeGC               = 56
	opSetDashes              = 58
	opSetClipRectangles      = 59
	opFreeGC                 = 60
	opCopyArea               = 62
	opPolyLine               = 65
	opPolySegment            = 66
	opPolyRectangle          = 67
	opPolyFillRectangle      = 70
	opPutImage               = 72
	opGetImage               = 73
	opCreateColormap         = 78
	opFreeColormap           = 79
	opCreateCursor           = 93
	opCreateGlyphCursor      = 94
	opFreeCursor             = 95
	opQueryExtension         = 98
	opGetKeyboardMapping     = 101
	opChangeKeyboardControl  = 102
	opBell                   = 104
	opSetScreenSaver         = 107
	opGetScreenSaver         = 108
	opForceScreenSaver       = 115
	opGetModifierMapping     = 119
	opNoOperation            = 127
)

// Extension major opcodes. They are fixed rather than negotiated; the
// client driver this server targets expects these exact values.
const (
	syncMajorOpcode    = 152
	presentMajorOpcode = 153
	dri3MajorOpcode    = 154
	shmMajorOpcode     = 155
	bigReqMajorOpcode  = 156
)
