// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// released under the MIT license

package command

import (
	"fmt"
)

// Code is a known numeric reply code.
type Code int

func (code Code) String() string {
	return fmt.Sprintf("%03d", int(code))
}

// Known reveals whether the code is part of the numeric table.
func (code Code) Known() bool {
	_, ok := knownCodes[code]
	return ok
}

// numerics, as per RFC 2812 plus the handful of extensions we emit
const (
	RPL_WELCOME            Code = 1
	RPL_YOURHOST           Code = 2
	RPL_CREATED            Code = 3
	RPL_MYINFO             Code = 4
	RPL_ISUPPORT           Code = 5
	RPL_BOUNCE             Code = 10
	RPL_USERHOST           Code = 302
	RPL_ISON               Code = 303
	RPL_AWAY               Code = 301
	RPL_UNAWAY             Code = 305
	RPL_NOWAWAY            Code = 306
	RPL_WHOISUSER          Code = 311
	RPL_WHOISSERVER        Code = 312
	RPL_WHOISOPERATOR      Code = 313
	RPL_WHOISIDLE          Code = 317
	RPL_ENDOFWHOIS         Code = 318
	RPL_WHOISCHANNELS      Code = 319
	RPL_WHOWASUSER         Code = 314
	RPL_ENDOFWHOWAS        Code = 369
	RPL_LISTSTART          Code = 321
	RPL_LIST               Code = 322
	RPL_LISTEND            Code = 323
	RPL_UNIQOPIS           Code = 325
	RPL_CHANNELMODEIS      Code = 324
	RPL_NOTOPIC            Code = 331
	RPL_TOPIC              Code = 332
	RPL_INVITING           Code = 341
	RPL_SUMMONING          Code = 342
	RPL_INVITELIST         Code = 346
	RPL_ENDOFINVITELIST    Code = 347
	RPL_EXCEPTLIST         Code = 348
	RPL_ENDOFEXCEPTLIST    Code = 349
	RPL_VERSION            Code = 351
	RPL_WHOREPLY           Code = 352
	RPL_ENDOFWHO           Code = 315
	RPL_NAMREPLY           Code = 353
	RPL_ENDOFNAMES         Code = 366
	RPL_LINKS              Code = 364
	RPL_ENDOFLINKS         Code = 365
	RPL_BANLIST            Code = 367
	RPL_ENDOFBANLIST       Code = 368
	RPL_INFO               Code = 371
	RPL_ENDOFINFO          Code = 374
	RPL_MOTDSTART          Code = 375
	RPL_MOTD               Code = 372
	RPL_ENDOFMOTD          Code = 376
	RPL_YOUREOPER          Code = 381
	RPL_REHASHING          Code = 382
	RPL_YOURESERVICE       Code = 383
	RPL_TIME               Code = 391
	RPL_USERSSTART         Code = 392
	RPL_USERS              Code = 393
	RPL_ENDOFUSERS         Code = 394
	RPL_NOUSERS            Code = 395
	RPL_UMODEIS            Code = 221
	RPL_LUSERCLIENT        Code = 251
	RPL_LUSEROP            Code = 252
	RPL_LUSERUNKNOWN       Code = 253
	RPL_LUSERCHANNELS      Code = 254
	RPL_LUSERME            Code = 255
	RPL_ADMINME            Code = 256
	RPL_ADMINLOC1          Code = 257
	RPL_ADMINLOC2          Code = 258
	RPL_ADMINEMAIL         Code = 259
	RPL_TRYAGAIN           Code = 263
	ERR_NOSUCHNICK         Code = 401
	ERR_NOSUCHSERVER       Code = 402
	ERR_NOSUCHCHANNEL      Code = 403
	ERR_CANNOTSENDTOCHAN   Code = 404
	ERR_TOOMANYCHANNELS    Code = 405
	ERR_WASNOSUCHNICK      Code = 406
	ERR_TOOMANYTARGETS     Code = 407
	ERR_NOORIGIN           Code = 409
	ERR_INVALIDCAPCMD      Code = 410
	ERR_NORECIPIENT        Code = 411
	ERR_NOTEXTTOSEND       Code = 412
	ERR_UNKNOWNCOMMAND     Code = 421
	ERR_NOMOTD             Code = 422
	ERR_NONICKNAMEGIVEN    Code = 431
	ERR_ERRONEUSNICKNAME   Code = 432
	ERR_NICKNAMEINUSE      Code = 433
	ERR_NICKCOLLISION      Code = 436
	ERR_USERNOTINCHANNEL   Code = 441
	ERR_NOTONCHANNEL       Code = 442
	ERR_USERONCHANNEL      Code = 443
	ERR_NOTREGISTERED      Code = 451
	ERR_NEEDMOREPARAMS     Code = 461
	ERR_ALREADYREGISTRED   Code = 462
	ERR_PASSWDMISMATCH     Code = 464
	ERR_YOUREBANNEDCREEP   Code = 465
	ERR_KEYSET             Code = 467
	ERR_CHANNELISFULL      Code = 471
	ERR_UNKNOWNMODE        Code = 472
	ERR_INVITEONLYCHAN     Code = 473
	ERR_BANNEDFROMCHAN     Code = 474
	ERR_BADCHANNELKEY      Code = 475
	ERR_BADCHANMASK        Code = 476
	ERR_ILLEGALCHANNELNAME Code = 479
	ERR_NOPRIVILEGES       Code = 481
	ERR_CHANOPRIVSNEEDED   Code = 482
	ERR_CANTKILLSERVER     Code = 483
	ERR_RESTRICTED         Code = 484
	ERR_NOOPERHOST         Code = 491
	ERR_UMODEUNKNOWNFLAG   Code = 501
	ERR_USERSDONTMATCH     Code = 502
)

var knownCodes = map[Code]struct{}{}

func init() {
	for _, code := range []Code{
		RPL_WELCOME, RPL_YOURHOST, RPL_CREATED, RPL_MYINFO, RPL_ISUPPORT, RPL_BOUNCE,
		RPL_USERHOST, RPL_ISON, RPL_AWAY, RPL_UNAWAY, RPL_NOWAWAY,
		RPL_WHOISUSER, RPL_WHOISSERVER, RPL_WHOISOPERATOR, RPL_WHOISIDLE,
		RPL_ENDOFWHOIS, RPL_WHOISCHANNELS, RPL_WHOWASUSER, RPL_ENDOFWHOWAS,
		RPL_LISTSTART, RPL_LIST, RPL_LISTEND, RPL_UNIQOPIS, RPL_CHANNELMODEIS,
		RPL_NOTOPIC, RPL_TOPIC, RPL_INVITING, RPL_SUMMONING, RPL_INVITELIST,
		RPL_ENDOFINVITELIST, RPL_EXCEPTLIST, RPL_ENDOFEXCEPTLIST, RPL_VERSION,
		RPL_WHOREPLY, RPL_ENDOFWHO, RPL_NAMREPLY, RPL_ENDOFNAMES, RPL_LINKS,
		RPL_ENDOFLINKS, RPL_BANLIST, RPL_ENDOFBANLIST, RPL_INFO, RPL_ENDOFINFO,
		RPL_MOTDSTART, RPL_MOTD, RPL_ENDOFMOTD, RPL_YOUREOPER, RPL_REHASHING,
		RPL_YOURESERVICE, RPL_TIME, RPL_USERSSTART, RPL_USERS, RPL_ENDOFUSERS,
		RPL_NOUSERS, RPL_UMODEIS, RPL_LUSERCLIENT, RPL_LUSEROP, RPL_LUSERUNKNOWN,
		RPL_LUSERCHANNELS, RPL_LUSERME, RPL_ADMINME, RPL_ADMINLOC1, RPL_ADMINLOC2,
		RPL_ADMINEMAIL, RPL_TRYAGAIN,
		ERR_NOSUCHNICK, ERR_NOSUCHSERVER, ERR_NOSUCHCHANNEL, ERR_CANNOTSENDTOCHAN,
		ERR_TOOMANYCHANNELS, ERR_WASNOSUCHNICK, ERR_TOOMANYTARGETS, ERR_NOORIGIN,
		ERR_INVALIDCAPCMD, ERR_NORECIPIENT, ERR_NOTEXTTOSEND, ERR_UNKNOWNCOMMAND,
		ERR_NOMOTD, ERR_NONICKNAMEGIVEN, ERR_ERRONEUSNICKNAME, ERR_NICKNAMEINUSE,
		ERR_NICKCOLLISION, ERR_USERNOTINCHANNEL, ERR_NOTONCHANNEL, ERR_USERONCHANNEL,
		ERR_NOTREGISTERED, ERR_NEEDMOREPARAMS, ERR_ALREADYREGISTRED, ERR_PASSWDMISMATCH,
		ERR_YOUREBANNEDCREEP, ERR_KEYSET, ERR_CHANNELISFULL, ERR_UNKNOWNMODE,
		ERR_INVITEONLYCHAN, ERR_BANNEDFROMCHAN, ERR_BADCHANNELKEY, ERR_BADCHANMASK,
		ERR_ILLEGALCHANNELNAME, ERR_NOPRIVILEGES, ERR_CHANOPRIVSNEEDED,
		ERR_CANTKILLSERVER, ERR_RESTRICTED, ERR_NOOPERHOST, ERR_UMODEUNKNOWNFLAG,
		ERR_USERSDONTMATCH,
	} {
		knownCodes[code] = struct{}{}
	}
}
